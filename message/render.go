package message

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/msg-to-imap/mapi"
)

// Render writes m as an RFC 5322 message: a text and HTML alternative
// inline, followed by one part per attachment. Embedded messages are
// rendered recursively as message/rfc822 parts.
func Render(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTo(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo is Render writing to w.
func WriteTo(w io.Writer, m *Message) error {
	h := m.header()

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("create message writer: %w", err)
	}

	if err := writeBody(mw, m); err != nil {
		return err
	}

	for i, a := range m.Attachments() {
		if a.ByReference && len(a.Data) == 0 {
			continue
		}
		if err := writeAttachment(mw, i, a); err != nil {
			return err
		}
	}
	return mw.Close()
}

func (m *Message) header() mail.Header {
	var h mail.Header
	transport := m.transportHeader()

	if date := m.Date(); !date.IsZero() {
		h.SetDate(date)
	} else if t, err := transport.Date(); err == nil && !t.IsZero() {
		h.SetDate(t)
	}

	if subject, err := m.Subject(); err == nil {
		h.SetSubject(subject)
	}
	if topic, err := m.ConversationTopic(); err == nil && topic != "" {
		h.SetText("Thread-Topic", topic)
	}

	from := &mail.Address{}
	from.Name, _ = m.DisplayFrom()
	if from.Name == "" {
		from.Name, _ = m.SentRepresenting()
	}
	from.Address, _ = m.SenderEmail()
	if from.Name != "" || from.Address != "" {
		h.SetAddressList("From", []*mail.Address{from})
	}

	lists := map[int][]*mail.Address{}
	for _, r := range m.Recipients() {
		if r.Address == "" && r.Name == "" {
			continue
		}
		lists[r.Type] = append(lists[r.Type], &mail.Address{Name: r.Name, Address: r.Address})
	}
	for _, f := range []struct {
		typ int
		key string
	}{{mapi.RecipientTo, "To"}, {mapi.RecipientCc, "Cc"}, {mapi.RecipientBcc, "Bcc"}} {
		if len(lists[f.typ]) > 0 {
			h.SetAddressList(f.key, lists[f.typ])
		}
	}

	id, err := m.MessageID()
	if err != nil {
		id, _ = transport.MessageID()
	}
	if id != "" {
		h.SetMessageID(id)
	}
	return h
}

// transportHeader parses PR_TRANSPORT_MESSAGE_HEADERS. Missing or broken
// headers yield an empty header.
func (m *Message) transportHeader() mail.Header {
	raw, err := m.TransportHeaders()
	if err != nil || strings.TrimSpace(raw) == "" {
		return mail.Header{}
	}
	raw = strings.TrimRight(raw, "\r\n") + "\r\n\r\n"
	h, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		return mail.Header{}
	}
	return mail.Header{Header: gomessage.Header{Header: h}}
}

func writeBody(mw *mail.Writer, m *Message) error {
	text, textErr := m.Body()
	html, htmlErr := m.BodyHTML()
	if textErr != nil && htmlErr != nil {
		text, textErr = "", nil
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("create inline part: %w", err)
	}
	if textErr == nil {
		if err := writeInline(iw, "text/plain", text); err != nil {
			return err
		}
	}
	if htmlErr == nil {
		if err := writeInline(iw, "text/html", html); err != nil {
			return err
		}
	}
	return iw.Close()
}

func writeInline(iw *mail.InlineWriter, contentType, text string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, text); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

func writeAttachment(mw *mail.Writer, index int, a Attachment) error {
	var h mail.AttachmentHeader
	data := a.Data
	name := a.Name

	switch {
	case a.Embedded != nil:
		raw, err := Render(a.Embedded)
		if err != nil {
			return fmt.Errorf("render embedded message %d: %w", index, err)
		}
		data = raw
		h.SetContentType("message/rfc822", nil)
		if name == "" {
			name, _ = a.Embedded.Subject()
		}
		if name != "" && !strings.HasSuffix(strings.ToLower(name), ".eml") {
			name += ".eml"
		}
	case a.MIMEType != "":
		h.SetContentType(a.MIMEType, nil)
	default:
		h.SetContentType("application/octet-stream", nil)
	}

	if name == "" {
		name = fmt.Sprintf("attachment-%d", index)
	}
	h.SetFilename(name)
	if a.ContentID != "" {
		h.Set("Content-Id", "<"+strings.Trim(a.ContentID, "<>")+">")
	}

	w, err := mw.CreateAttachment(h)
	if err != nil {
		return fmt.Errorf("create attachment %d: %w", index, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write attachment %d: %w", index, err)
	}
	return w.Close()
}
