package chunks

import (
	"bytes"

	"github.com/dhcgn/msg-to-imap/mapi"
)

// Kind is the variant of a chunk group.
type Kind int

const (
	KindMessage Kind = iota
	KindRecipient
	KindAttachment
	KindNameID
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindRecipient:
		return "recipient"
	case KindAttachment:
		return "attachment"
	case KindNameID:
		return "nameid"
	default:
		return "unknown"
	}
}

// Group is one chunk group of a parse result.
type Group interface {
	Kind() Kind
	Chunks() *Set
}

// Indexed is implemented by recipient and attachment groups. The index is
// taken verbatim from the sub-storage name.
type Indexed interface {
	Group
	Index() uint32
}

// field is an accessor slot bound after the walk. An unset field means the
// tag was never seen.
type field[T any] struct {
	v  T
	ok bool
}

func (f *field[T]) set(v T) {
	f.v, f.ok = v, true
}

func (f field[T]) get() (T, bool) {
	return f.v, f.ok
}

func bindString(s *Set, tag uint16, f *field[string]) {
	if v, ok := s.String(tag); ok {
		f.set(v)
	}
}

func bindInt(s *Set, tag uint16, f *field[int64]) {
	if v, ok := s.Int(tag); ok {
		f.set(v)
	}
}

// MessageGroup holds the top-level properties of a container.
type MessageGroup struct {
	set         Set
	recipients  field[int64]
	attachments field[int64]
}

func (g *MessageGroup) Kind() Kind   { return KindMessage }
func (g *MessageGroup) Chunks() *Set { return &g.set }

// DeclaredRecipients is the recipient count from the fixed-property stream
// header, when the container has one.
func (g *MessageGroup) DeclaredRecipients() (int64, bool) {
	return g.recipients.get()
}

// DeclaredAttachments is the attachment count from the fixed-property
// stream header, when the container has one.
func (g *MessageGroup) DeclaredAttachments() (int64, bool) {
	return g.attachments.get()
}

// RecipientGroup holds the properties of one recipient.
type RecipientGroup struct {
	index uint32
	set   Set

	displayName  field[string]
	emailAddress field[string]
	addressType  field[string]
	smtpAddress  field[string]
	recipType    field[int64]
	rowID        field[int64]
}

func (g *RecipientGroup) Kind() Kind    { return KindRecipient }
func (g *RecipientGroup) Chunks() *Set  { return &g.set }
func (g *RecipientGroup) Index() uint32 { return g.index }

func (g *RecipientGroup) bind() {
	bindString(&g.set, mapi.TagDisplayName, &g.displayName)
	bindString(&g.set, mapi.TagEmailAddress, &g.emailAddress)
	bindString(&g.set, mapi.TagAddressType, &g.addressType)
	bindString(&g.set, mapi.TagSMTPAddress, &g.smtpAddress)
	bindInt(&g.set, mapi.TagRecipientType, &g.recipType)
	bindInt(&g.set, mapi.TagRowID, &g.rowID)
}

func (g *RecipientGroup) DisplayName() (string, bool)  { return g.displayName.get() }
func (g *RecipientGroup) EmailAddress() (string, bool) { return g.emailAddress.get() }
func (g *RecipientGroup) AddressType() (string, bool)  { return g.addressType.get() }
func (g *RecipientGroup) SMTPAddress() (string, bool)  { return g.smtpAddress.get() }

// Type is the PR_RECIPIENT_TYPE value (mapi.RecipientTo, Cc or Bcc).
func (g *RecipientGroup) Type() (int64, bool) { return g.recipType.get() }

// RowID is PR_ROWID, the recipient's position in the original table.
func (g *RecipientGroup) RowID() (int64, bool) { return g.rowID.get() }

// Address prefers the SMTP address over the native email address, which
// is an X.500 DN for Exchange recipients.
func (g *RecipientGroup) Address() (string, bool) {
	if v, ok := g.smtpAddress.get(); ok && v != "" {
		return v, true
	}
	return g.emailAddress.get()
}

// AttachmentGroup holds the properties of one attachment. An attachment
// carries raw data, an embedded message, or neither.
type AttachmentGroup struct {
	index    uint32
	set      Set
	embedded *Result

	fileName     field[string]
	longFileName field[string]
	extension    field[string]
	mimeType     field[string]
	contentID    field[string]
	displayName  field[string]
	method       field[int64]
	size         field[int64]
	data         field[[]byte]
}

func (g *AttachmentGroup) Kind() Kind    { return KindAttachment }
func (g *AttachmentGroup) Chunks() *Set  { return &g.set }
func (g *AttachmentGroup) Index() uint32 { return g.index }

func (g *AttachmentGroup) bind() {
	bindString(&g.set, mapi.TagAttachFilename, &g.fileName)
	bindString(&g.set, mapi.TagAttachLongFname, &g.longFileName)
	bindString(&g.set, mapi.TagAttachExtension, &g.extension)
	bindString(&g.set, mapi.TagAttachMimeTag, &g.mimeType)
	bindString(&g.set, mapi.TagAttachContentID, &g.contentID)
	bindString(&g.set, mapi.TagDisplayName, &g.displayName)
	bindInt(&g.set, mapi.TagAttachMethod, &g.method)
	bindInt(&g.set, mapi.TagAttachSize, &g.size)
	if b, ok := g.set.Bytes(mapi.TagAttachDataObj); ok {
		g.data.set(b)
	}
}

// FileName is the short (8.3) file name.
func (g *AttachmentGroup) FileName() (string, bool)     { return g.fileName.get() }
func (g *AttachmentGroup) LongFileName() (string, bool) { return g.longFileName.get() }
func (g *AttachmentGroup) Extension() (string, bool)    { return g.extension.get() }
func (g *AttachmentGroup) MIMEType() (string, bool)     { return g.mimeType.get() }
func (g *AttachmentGroup) ContentID() (string, bool)    { return g.contentID.get() }
func (g *AttachmentGroup) DisplayName() (string, bool)  { return g.displayName.get() }
func (g *AttachmentGroup) Method() (int64, bool)        { return g.method.get() }
func (g *AttachmentGroup) Size() (int64, bool)          { return g.size.get() }

// Data returns a copy of the attachment bytes.
func (g *AttachmentGroup) Data() ([]byte, bool) {
	b, ok := g.data.get()
	return bytes.Clone(b), ok
}

// ByReference reports whether the attachment only points at a file outside
// the message.
func (g *AttachmentGroup) ByReference() bool {
	m, ok := g.method.get()
	return ok && m == mapi.AttachByReference
}

// Embedded returns the parse result of an embedded message attachment.
func (g *AttachmentGroup) Embedded() (*Result, bool) {
	return g.embedded, g.embedded != nil
}

// Name returns the best available file name: long name, short name, then
// display name.
func (g *AttachmentGroup) Name() string {
	for _, f := range []field[string]{g.longFileName, g.fileName, g.displayName} {
		if v, ok := f.get(); ok && v != "" {
			return v
		}
	}
	return ""
}

// NameIDGroup holds the raw streams of the named-property storage and the
// mapping built from them.
type NameIDGroup struct {
	set   Set
	names *NamedProperties
}

func (g *NameIDGroup) Kind() Kind   { return KindNameID }
func (g *NameIDGroup) Chunks() *Set { return &g.set }

func (g *NameIDGroup) Names() *NamedProperties {
	return g.names
}
