package inbox

import (
	"cmp"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
)

const maxMultipartDepth = 5

// ParseMessage reads an RFC 5322 message. The first text/plain and
// text/html parts found become Text and HTML.
func ParseMessage(rawID string, r io.Reader) (Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return Message{}, errors.Join(ErrParseMessage, err)
	}

	dec := new(mime.WordDecoder)
	m := Message{
		RawID:   rawID,
		From:    decodeHeader(dec, msg.Header.Get("From")),
		Subject: decodeHeader(dec, msg.Header.Get("Subject")),
	}
	if date, err := msg.Header.Date(); err == nil {
		m.Date = date
	}

	if err := readPart(&m, textproto.MIMEHeader(msg.Header), msg.Body, 0); err != nil {
		return Message{}, errors.Join(ErrParseMessage, err)
	}
	if m.Text == "" && m.HTML == "" {
		return m, ErrNoBody
	}
	return m, nil
}

func decodeHeader(dec *mime.WordDecoder, v string) string {
	s, err := dec.DecodeHeader(v)
	if err != nil {
		return v
	}
	return s
}

func readPart(m *Message, h textproto.MIMEHeader, body io.Reader, depth int) error {
	mediaType, params, err := mime.ParseMediaType(cmp.Or(h.Get("Content-Type"), "text/plain"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxMultipartDepth || params["boundary"] == "" {
			return nil
		}
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := readPart(m, part.Header, part, depth+1); err != nil {
				return err
			}
		}
	}

	var target *string
	switch {
	case mediaType == "text/plain" && m.Text == "":
		target = &m.Text
	case mediaType == "text/html" && m.HTML == "":
		target = &m.HTML
	default:
		return nil
	}

	data, err := io.ReadAll(transferDecoder(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return err
	}
	*target = strings.TrimSpace(string(data))
	return nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}
