package inbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dmitrymomot/mailpipe/pkg/logger"
)

// seenSuffix is the maildir info suffix for a read message.
const seenSuffix = ":2,S"

// DirReader reads messages from root/new and files them under root/cur.
type DirReader struct {
	logger *slog.Logger
	root   string
}

// NewDirReader reads the maildir at root. A nil logger discards logs.
func NewDirReader(root string, log *slog.Logger) *DirReader {
	if log == nil {
		log = logger.NewNope()
	}
	return &DirReader{root: root, logger: log}
}

// Unseen parses every file in new/ in name order. Files that cannot be
// parsed or carry no body are moved to cur/ and skipped.
func (d *DirReader) Unseen(ctx context.Context) ([]Message, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, "new"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	msgs := make([]Message, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := d.parse(name)
		if err != nil {
			d.logger.WarnContext(ctx, "skipping inbound message",
				slog.String("raw_id", name),
				slog.Any("error", err),
			)
			if err := d.Ack(ctx, name); err != nil {
				return nil, err
			}
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (d *DirReader) parse(name string) (Message, error) {
	f, err := os.Open(filepath.Join(d.root, "new", name))
	if err != nil {
		return Message{}, err
	}
	defer f.Close()
	return ParseMessage(name, f)
}

// Ack moves the named files from new/ to cur/ with the seen flag.
func (d *DirReader) Ack(_ context.Context, rawIDs ...string) error {
	cur := filepath.Join(d.root, "cur")
	if err := os.MkdirAll(cur, 0o755); err != nil {
		return err
	}
	for _, name := range rawIDs {
		if name != filepath.Base(name) {
			return errors.Join(ErrRead, errors.New("raw id is not a file name: "+name))
		}
		if err := os.Rename(filepath.Join(d.root, "new", name), filepath.Join(cur, name+seenSuffix)); err != nil {
			return err
		}
	}
	return nil
}
