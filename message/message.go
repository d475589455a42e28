// Package message exposes a decoded .msg container through field
// accessors and renders it as an RFC 5322 message.
package message

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dhcgn/msg-to-imap/chunks"
	"github.com/dhcgn/msg-to-imap/mapi"
	"github.com/dhcgn/msg-to-imap/storage"
)

// ErrChunkNotFound is returned by accessors whose property is absent or
// could not be decoded.
var ErrChunkNotFound = errors.New("chunk not found")

// Message is a read-only view over a parse result.
type Message struct {
	res *chunks.Result
}

func New(res *chunks.Result) *Message {
	return &Message{res: res}
}

// Parse decodes a compound file.
func Parse(r io.ReaderAt, opts chunks.Options) (*Message, error) {
	dir, err := storage.OpenCFB(r)
	if err != nil {
		return nil, err
	}
	res, err := chunks.Parse(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return New(res), nil
}

// Open decodes the .msg file at path.
func Open(path string, opts chunks.Options) (*Message, error) {
	dir, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	res, err := chunks.Parse(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return New(res), nil
}

func (m *Message) Result() *chunks.Result {
	return m.res
}

func (m *Message) props() *chunks.Set {
	return m.res.Message().Chunks()
}

func (m *Message) str(tag uint16) (string, error) {
	v, ok := m.props().String(tag)
	if !ok {
		return "", fmt.Errorf("tag 0x%04X: %w", tag, ErrChunkNotFound)
	}
	return v, nil
}

func (m *Message) when(tag uint16) (time.Time, error) {
	v, ok := m.props().Time(tag)
	if !ok || v.IsZero() {
		return time.Time{}, fmt.Errorf("tag 0x%04X: %w", tag, ErrChunkNotFound)
	}
	return v, nil
}

func (m *Message) Subject() (string, error)      { return m.str(mapi.TagSubject) }
func (m *Message) DisplayTo() (string, error)    { return m.str(mapi.TagDisplayTo) }
func (m *Message) DisplayCC() (string, error)    { return m.str(mapi.TagDisplayCc) }
func (m *Message) DisplayBCC() (string, error)   { return m.str(mapi.TagDisplayBcc) }
func (m *Message) DisplayFrom() (string, error)  { return m.str(mapi.TagSenderName) }
func (m *Message) Body() (string, error)         { return m.str(mapi.TagBody) }
func (m *Message) MessageClass() (string, error) { return m.str(mapi.TagMessageClass) }

// SentRepresenting is the display name of the mailbox the message was sent
// on behalf of.
func (m *Message) SentRepresenting() (string, error) {
	return m.str(mapi.TagSentRepresenting)
}

// ConversationTopic is the subject without prefixes such as "RE:".
func (m *Message) ConversationTopic() (string, error) {
	return m.str(mapi.TagConversationTopic)
}

// TransportHeaders returns the original internet headers, when the message
// was received over SMTP.
func (m *Message) TransportHeaders() (string, error) {
	return m.str(mapi.TagTransportHeaders)
}

// MessageID returns the internet message id without angle brackets.
func (m *Message) MessageID() (string, error) {
	id, err := m.str(mapi.TagInternetMessageID)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(id), "<>"), nil
}

// SenderEmail prefers the SMTP address over PR_SENDER_EMAIL_ADDRESS, which
// holds an X.500 DN for Exchange senders.
func (m *Message) SenderEmail() (string, error) {
	if v, err := m.str(mapi.TagSenderSMTPAddress); err == nil && v != "" {
		return v, nil
	}
	return m.str(mapi.TagSenderEmail)
}

func (m *Message) SubmitTime() (time.Time, error)   { return m.when(mapi.TagClientSubmitTime) }
func (m *Message) DeliveryTime() (time.Time, error) { return m.when(mapi.TagDeliveryTime) }

// BodyHTML returns the HTML body. Outlook stores it either as a string or
// as binary in the message's internet code page.
func (m *Message) BodyHTML() (string, error) {
	c, ok := m.props().Get(mapi.TagBodyHTML)
	if !ok || !c.OK() {
		return "", fmt.Errorf("tag 0x%04X: %w", mapi.TagBodyHTML, ErrChunkNotFound)
	}
	if s, ok := c.Value.AsString(); ok {
		return s, nil
	}
	raw, _ := c.Value.AsBytes()
	enc, err := mapi.CodePageEncoding(m.res.CodePage)
	if err != nil {
		return string(raw), nil
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), nil
	}
	return string(out), nil
}

// RTFCompressed returns PR_RTF_COMPRESSED as stored; it is not
// decompressed.
func (m *Message) RTFCompressed() ([]byte, error) {
	b, ok := m.props().Bytes(mapi.TagRtfCompressed)
	if !ok {
		return nil, fmt.Errorf("tag 0x%04X: %w", mapi.TagRtfCompressed, ErrChunkNotFound)
	}
	return b, nil
}

// Date is the submit time, falling back to the delivery time. The zero
// time means neither is present.
func (m *Message) Date() time.Time {
	if t, err := m.SubmitTime(); err == nil {
		return t
	}
	if t, err := m.DeliveryTime(); err == nil {
		return t
	}
	return time.Time{}
}

// Recipient is one addressee.
type Recipient struct {
	Name    string
	Address string
	Type    int
	RowID   int
}

func (m *Message) Recipients() []Recipient {
	groups := m.res.Recipients()
	out := make([]Recipient, 0, len(groups))
	for _, g := range groups {
		r := Recipient{Type: mapi.RecipientTo}
		r.Name, _ = g.DisplayName()
		r.Address, _ = g.Address()
		if t, ok := g.Type(); ok {
			r.Type = int(t &^ 0x10000000)
		}
		if id, ok := g.RowID(); ok {
			r.RowID = int(id)
		}
		out = append(out, r)
	}
	return out
}

// Attachment is one attachment. Embedded is set instead of Data for an
// attached message. ByReference attachments usually carry no data.
type Attachment struct {
	Name        string
	MIMEType    string
	ContentID   string
	Data        []byte
	Embedded    *Message
	ByReference bool
}

func (m *Message) Attachments() []Attachment {
	groups := m.res.Attachments()
	out := make([]Attachment, 0, len(groups))
	for _, g := range groups {
		a := Attachment{Name: g.Name(), ByReference: g.ByReference()}
		a.MIMEType, _ = g.MIMEType()
		a.ContentID, _ = g.ContentID()
		a.Data, _ = g.Data()
		if res, ok := g.Embedded(); ok {
			a.Embedded = New(res)
		}
		out = append(out, a)
	}
	return out
}
