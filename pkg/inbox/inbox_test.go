package inbox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/inbox"
	"github.com/dmitrymomot/mailpipe/pkg/queue"
	"github.com/dmitrymomot/mailpipe/pkg/queue/memstore"
)

const plainMessage = "From: Ann <ann@example.com>\r\n" +
	"Subject: Question about billing\r\n" +
	"Date: Mon, 02 Mar 2026 10:00:00 +0000\r\n" +
	"\r\n" +
	"Hi, how do I upgrade?\r\n"

const multipartMessage = "From: =?UTF-8?Q?Jos=C3=A9?= <jose@example.com>\r\n" +
	"Subject: =?UTF-8?B?SG9sYSDinKg=?=\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"caf=C3=A9 time\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"PHA+Y2Fmw6kgdGltZTwvcD4=\r\n" +
	"--b1--\r\n"

func TestParseMessage(t *testing.T) {
	t.Parallel()

	t.Run("plain", func(t *testing.T) {
		t.Parallel()

		m, err := inbox.ParseMessage("42", strings.NewReader(plainMessage))
		require.NoError(t, err)
		assert.Equal(t, "42", m.RawID)
		assert.Equal(t, "Ann <ann@example.com>", m.From)
		assert.Equal(t, "Question about billing", m.Subject)
		assert.Equal(t, "Hi, how do I upgrade?", m.Text)
		assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), m.Date.UTC())
	})

	t.Run("multipart with encodings", func(t *testing.T) {
		t.Parallel()

		m, err := inbox.ParseMessage("43", strings.NewReader(multipartMessage))
		require.NoError(t, err)
		assert.Equal(t, "José <jose@example.com>", m.From)
		assert.Equal(t, "Hola ✨", m.Subject)
		assert.Equal(t, "café time", m.Text)
		assert.Equal(t, "<p>café time</p>", m.HTML)
		assert.Equal(t, "café time", m.Body())
	})

	t.Run("no body", func(t *testing.T) {
		t.Parallel()

		_, err := inbox.ParseMessage("44", strings.NewReader("From: a@x.com\r\n\r\n"))
		require.ErrorIs(t, err, inbox.ErrNoBody)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()

		_, err := inbox.ParseMessage("45", strings.NewReader("not a message"))
		require.ErrorIs(t, err, inbox.ErrParseMessage)
	})
}

type fakeReader struct {
	msgs  []inbox.Message
	acked []string
	err   error
}

func (r *fakeReader) Unseen(context.Context) ([]inbox.Message, error) { return r.msgs, r.err }

func (r *fakeReader) Ack(_ context.Context, ids ...string) error {
	r.acked = append(r.acked, ids...)
	return nil
}

func TestSyncer_StoresRepliesWithFallbacks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := memstore.New()
	reader := &fakeReader{msgs: []inbox.Message{
		{RawID: "1", From: "ann@example.com", Subject: "Hello", Text: "plain", HTML: "<p>html</p>", Date: now.Add(-time.Hour)},
		{RawID: "2", HTML: "<p>only html</p>"},
	}}

	s, err := inbox.NewSyncer(store, reader, inbox.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	res, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, inbox.SyncResult{Fetched: 2, Stored: 2}, res)
	assert.Equal(t, []string{"1", "2"}, reader.acked)

	replies := store.Replies()
	require.Len(t, replies, 2)
	byRaw := map[string]*queue.Reply{}
	for _, r := range replies {
		byRaw[r.RawID] = r
	}

	first := byRaw["1"]
	assert.Equal(t, "ann@example.com", first.From)
	assert.Equal(t, "plain", first.Body)
	assert.Equal(t, queue.ReplyStatusUnread, first.Status)
	assert.Equal(t, now.Add(-time.Hour), first.ReceivedAt)

	second := byRaw["2"]
	assert.Equal(t, inbox.UnknownSender, second.From)
	assert.Equal(t, inbox.DefaultSubject, second.Subject)
	assert.Equal(t, "<p>only html</p>", second.Body)
	assert.Equal(t, now, second.ReceivedAt)
	assert.NotEqual(t, first.ID, second.ID)
}

type failingReplies struct{}

func (failingReplies) SaveReply(context.Context, *queue.Reply) error { return errors.New("write failed") }

func TestSyncer_FailedMessagesStayUnseen(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{msgs: []inbox.Message{{RawID: "1", Text: "x"}}}
	s, err := inbox.NewSyncer(failingReplies{}, reader)
	require.NoError(t, err)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, reader.acked)
}

func TestSyncer_ReaderErrors(t *testing.T) {
	t.Parallel()

	s, err := inbox.NewSyncer(memstore.New(), &fakeReader{err: errors.New("login failed")})
	require.NoError(t, err)

	_, err = s.Sync(context.Background())
	require.ErrorIs(t, err, inbox.ErrRead)
}

func TestSyncer_NoReaderIsNoop(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	s, err := inbox.NewSyncer(store, nil)
	require.NoError(t, err)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Empty(t, store.Replies())

	_, err = inbox.NewSyncer(nil, nil)
	require.ErrorIs(t, err, inbox.ErrNilStore)
}

func TestDirReader(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	newDir := filepath.Join(root, "new")
	require.NoError(t, os.MkdirAll(newDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "0001.eml"), []byte(plainMessage), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "0002.eml"), []byte(multipartMessage), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "0003.eml"), []byte("From: a@x.com\r\n\r\n"), 0o600))

	store := memstore.New()
	s, err := inbox.NewSyncer(store, inbox.NewDirReader(root, nil))
	require.NoError(t, err)

	res, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.Len(t, store.Replies(), 2)

	left, err := os.ReadDir(newDir)
	require.NoError(t, err)
	assert.Empty(t, left)

	seen, err := os.ReadDir(filepath.Join(root, "cur"))
	require.NoError(t, err)
	assert.Len(t, seen, 3)
	assert.True(t, strings.HasSuffix(seen[0].Name(), ":2,S"))

	res, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
}

func TestDirReader_MissingDir(t *testing.T) {
	t.Parallel()

	msgs, err := inbox.NewDirReader(filepath.Join(t.TempDir(), "absent"), nil).Unseen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
