package chunks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/dhcgn/msg-to-imap/mapi"
	"github.com/dhcgn/msg-to-imap/storage"
)

// Order selects how Result.Groups is sequenced after the message group.
type Order int

const (
	// OrderContainer keeps the order in which the container reader lists
	// sub-storages.
	OrderContainer Order = iota
	// OrderNormalized sorts recipients by index, then attachments by index,
	// then the named-property group.
	OrderNormalized
)

const DefaultMaxDepth = 8

// Options bound and configure a parse. The zero value is usable.
type Options struct {
	// CodePage decodes ANSI strings of containers that do not declare a
	// code page. Zero selects mapi.DefaultCodePage.
	CodePage int
	// MaxDepth limits embedded message nesting. Zero selects
	// DefaultMaxDepth.
	MaxDepth int
	// MaxElements limits multivalued element counts. Zero selects
	// mapi.DefaultMaxElements.
	MaxElements int
	Order       Order
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.CodePage <= 0 {
		o.CodePage = mapi.DefaultCodePage
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxElements <= 0 {
		o.MaxElements = mapi.DefaultMaxElements
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Parse walks a message container depth first and returns its chunk
// groups. Undecodable values are recorded on their chunks and unknown
// entries in Result.Unknown; only container read failures and
// ErrDepthLimit abort the parse.
func Parse(root storage.Storage, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	w := &walker{
		opts:     opts,
		log:      opts.Logger,
		decoders: make(map[int]*mapi.Decoder),
	}
	fallback, err := w.decoder(opts.CodePage)
	if err != nil {
		return nil, fmt.Errorf("fallback code page: %w", err)
	}
	return w.message(root, "/", 0, nil, fallback)
}

type walker struct {
	opts     Options
	log      *slog.Logger
	decoders map[int]*mapi.Decoder
}

func (w *walker) decoder(codePage int) (*mapi.Decoder, error) {
	if d, ok := w.decoders[codePage]; ok {
		return d, nil
	}
	d, err := mapi.NewDecoder(codePage)
	if err != nil {
		return nil, err
	}
	d = d.WithMaxElements(w.opts.MaxElements)
	w.decoders[codePage] = d
	return d, nil
}

func (w *walker) unknown(r *Result, p string, e storage.Entry, reason string) {
	w.log.Debug("unknown container entry", "path", p, "name", e.Name, "kind", e.Kind, "reason", reason)
	r.Unknown = append(r.Unknown, UnknownEntry{Path: p, Name: e.Name, Kind: e.Kind, Reason: reason})
}

// message walks a top-level or embedded message container. names is nil
// for the outermost container.
func (w *walker) message(st storage.Storage, p string, depth int, names *NamedProperties, fallback *mapi.Decoder) (*Result, error) {
	if depth > w.opts.MaxDepth {
		return nil, fmt.Errorf("%s: %w (%d)", p, ErrDepthLimit, w.opts.MaxDepth)
	}
	entries, err := st.Entries()
	if err != nil {
		return nil, &ContainerReadError{Path: p, Err: err}
	}

	msg := &MessageGroup{}
	r := &Result{Path: p, Depth: depth, CodePage: fallback.CodePage(), message: msg}
	r.Groups = append(r.Groups, msg)

	headerLen := topHeaderLen
	if depth > 0 {
		headerLen = embeddedHeaderLen
	}
	fp, err := w.fixed(st, p, entries, headerLen, &msg.set, fallback, r)
	if err != nil {
		return nil, err
	}
	if fp.counts {
		msg.recipients.set(fp.recipients)
		msg.attachments.set(fp.attachments)
	}

	dec := fallback
	if cp, ok := declaredCodePage(fp.chunks); ok && cp != fallback.CodePage() {
		if d, err := w.decoder(cp); err != nil {
			w.log.Debug("declared code page not supported, using fallback", "path", p, "code_page", cp, "fallback", fallback.CodePage())
		} else {
			dec = d
			r.CodePage = cp
		}
	}

	var nameGroup *NameIDGroup
	if names == nil {
		names = newNamedProperties()
		for _, e := range entries {
			if e.Kind == storage.KindStorage && mapi.ParseEntryName(e.Name).Kind == mapi.EntryNameID {
				if nameGroup, err = w.nameID(st, p, e.Name, dec, r); err != nil {
					return nil, err
				}
				names = nameGroup.names
				break
			}
		}
	}
	r.Names = names

	if err := w.streams(st, p, entries, &msg.set, dec, r); err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Kind != storage.KindStorage {
			continue
		}
		child := path.Join(p, e.Name)
		switch en := mapi.ParseEntryName(e.Name); en.Kind {
		case mapi.EntryRecipient:
			g, err := w.recipient(st, child, e.Name, en.Index, dec, r)
			if err != nil {
				return nil, err
			}
			r.Groups = append(r.Groups, g)
		case mapi.EntryAttachment:
			g, err := w.attachment(st, child, e.Name, en.Index, depth, dec, r)
			if err != nil {
				return nil, err
			}
			r.Groups = append(r.Groups, g)
		case mapi.EntryNameID:
			if nameGroup == nil {
				// Embedded messages keep resolving against the outer table.
				if nameGroup, err = w.nameID(st, p, e.Name, dec, r); err != nil {
					return nil, err
				}
			}
			r.Groups = append(r.Groups, nameGroup)
		default:
			w.unknown(r, p, e, "unrecognized storage")
		}
	}

	if w.opts.Order == OrderNormalized {
		normalizeOrder(r.Groups)
	}
	return r, nil
}

func (w *walker) open(st storage.Storage, p, name string) (storage.Storage, []storage.Entry, error) {
	sub, err := st.OpenStorage(name)
	if err != nil {
		return nil, nil, &ContainerReadError{Path: p, Err: err}
	}
	entries, err := sub.Entries()
	if err != nil {
		return nil, nil, &ContainerReadError{Path: p, Err: err}
	}
	return sub, entries, nil
}

func (w *walker) recipient(st storage.Storage, p, name string, index uint32, dec *mapi.Decoder, r *Result) (*RecipientGroup, error) {
	sub, entries, err := w.open(st, p, name)
	if err != nil {
		return nil, err
	}
	g := &RecipientGroup{index: index}
	if _, err := w.fixed(sub, p, entries, subHeaderLen, &g.set, dec, r); err != nil {
		return nil, err
	}
	if err := w.streams(sub, p, entries, &g.set, dec, r); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Kind == storage.KindStorage {
			w.unknown(r, p, e, "storage inside recipient")
		}
	}
	g.bind()
	return g, nil
}

func (w *walker) attachment(st storage.Storage, p, name string, index uint32, depth int, dec *mapi.Decoder, r *Result) (*AttachmentGroup, error) {
	sub, entries, err := w.open(st, p, name)
	if err != nil {
		return nil, err
	}
	g := &AttachmentGroup{index: index}
	if _, err := w.fixed(sub, p, entries, subHeaderLen, &g.set, dec, r); err != nil {
		return nil, err
	}
	if err := w.streams(sub, p, entries, &g.set, dec, r); err != nil {
		return nil, err
	}

	method, _ := g.set.Int(mapi.TagAttachMethod)
	for _, e := range entries {
		if e.Kind != storage.KindStorage {
			continue
		}
		en := mapi.ParseEntryName(e.Name)
		switch {
		case en.Kind != mapi.EntryProperty || en.Type != mapi.TypeObject:
			w.unknown(r, p, e, "unrecognized storage")
		case method == mapi.AttachOLE:
			w.unknown(r, p, e, "OLE object storage")
		case g.embedded != nil:
			w.unknown(r, p, e, "second embedded message")
		default:
			child := path.Join(p, e.Name)
			obj, err := sub.OpenStorage(e.Name)
			if err != nil {
				return nil, &ContainerReadError{Path: child, Err: err}
			}
			if g.embedded, err = w.message(obj, child, depth+1, r.Names, dec); err != nil {
				return nil, err
			}
		}
	}
	g.bind()
	return g, nil
}

// fixed decodes the __properties_version1.0 stream of one storage into set.
// A missing stream yields an empty result.
func (w *walker) fixed(st storage.Storage, p string, entries []storage.Entry, headerLen int, set *Set, dec *mapi.Decoder, r *Result) (fixedProperties, error) {
	for _, e := range entries {
		if e.Kind != storage.KindStream || e.Name != mapi.PropertiesStream {
			continue
		}
		data, err := st.ReadStream(e.Name)
		if err != nil {
			return fixedProperties{}, &ContainerReadError{Path: path.Join(p, e.Name), Err: err}
		}
		fp, err := readFixedProperties(dec, data, headerLen)
		if err != nil {
			w.unknown(r, p, e, err.Error())
			return fixedProperties{}, nil
		}
		if fp.trailing > 0 {
			w.unknown(r, p, e, fmt.Sprintf("%d trailing bytes after last record", fp.trailing))
		}
		for _, c := range fp.chunks {
			w.insert(p, set, c)
		}
		return fp, nil
	}
	return fixedProperties{}, nil
}

type elementKey struct {
	tag   uint16
	typ   mapi.Type
	index uint32
}

// streams decodes the direct property streams of one storage into set, in
// container order. Element streams of variable-width multivalued
// properties are consumed by their length stream; leftovers are reported
// as unknown.
func (w *walker) streams(st storage.Storage, p string, entries []storage.Entry, set *Set, dec *mapi.Decoder, r *Result) error {
	elements := make(map[elementKey]storage.Entry)
	for _, e := range entries {
		if e.Kind != storage.KindStream {
			continue
		}
		if en := mapi.ParseEntryName(e.Name); en.Kind == mapi.EntryMultiElement {
			elements[elementKey{en.Tag, en.Type, en.Index}] = e
		}
	}
	used := make(map[elementKey]bool)

	for _, e := range entries {
		if e.Kind != storage.KindStream {
			continue
		}
		en := mapi.ParseEntryName(e.Name)
		switch en.Kind {
		case mapi.EntryProperties, mapi.EntryMultiElement:
			continue
		case mapi.EntryProperty:
		case mapi.EntryRecipient, mapi.EntryAttachment, mapi.EntryNameID:
			w.unknown(r, p, e, "stream where a storage is expected")
			continue
		default:
			w.unknown(r, p, e, "unrecognized stream")
			continue
		}

		data, err := st.ReadStream(e.Name)
		if err != nil {
			return &ContainerReadError{Path: path.Join(p, e.Name), Err: err}
		}
		c := Chunk{Tag: en.Tag, Type: en.Type, Source: e.Name}
		if en.Type.IsMulti() && !en.Type.Fixed() && en.Type.Known() {
			c.Value, c.Err = w.elements(st, p, en, data, elements, used, dec)
			var cre *ContainerReadError
			if errors.As(c.Err, &cre) {
				return c.Err
			}
		} else {
			c.Value, c.Err = dec.Decode(en.Type, data)
		}
		w.insert(p, set, c)
	}

	for _, e := range entries {
		en := mapi.ParseEntryName(e.Name)
		if e.Kind != storage.KindStream || en.Kind != mapi.EntryMultiElement {
			continue
		}
		if !used[elementKey{en.Tag, en.Type, en.Index}] {
			w.unknown(r, p, e, "element stream without a length stream")
		}
	}
	return nil
}

// elements reads the per-element streams of a variable-width multivalued
// property. The length stream holds 4-byte entries for strings and 8-byte
// entries for binary values. A *ContainerReadError is fatal; any other
// error belongs to the chunk.
func (w *walker) elements(st storage.Storage, p string, en mapi.EntryName, lengths []byte, elements map[elementKey]storage.Entry, used map[elementKey]bool, dec *mapi.Decoder) (mapi.Value, error) {
	width := 4
	if en.Type.Base() == mapi.TypeBinary {
		width = 8
	}
	if len(lengths)%width != 0 {
		return mapi.Value{}, &mapi.MalformedValueError{Type: en.Type, Reason: fmt.Sprintf("length stream of %d bytes is not a multiple of %d", len(lengths), width)}
	}
	n := len(lengths) / width
	if n > w.opts.MaxElements {
		return mapi.Value{}, &mapi.MalformedValueError{Type: en.Type, Reason: fmt.Sprintf("%d elements exceeds limit of %d", n, w.opts.MaxElements)}
	}

	parts := make([][]byte, n)
	var missing error
	for i := range parts {
		k := elementKey{en.Tag, en.Type, uint32(i)}
		e, ok := elements[k]
		if !ok {
			if missing == nil {
				missing = &mapi.MalformedValueError{Type: en.Type, Reason: fmt.Sprintf("element %d stream missing", i)}
			}
			continue
		}
		used[k] = true
		data, err := st.ReadStream(e.Name)
		if err != nil {
			return mapi.Value{}, &ContainerReadError{Path: path.Join(p, e.Name), Err: err}
		}
		declared := uint64(binary.LittleEndian.Uint32(lengths[i*width:]))
		if declared > uint64(len(data)) {
			if missing == nil {
				missing = &mapi.MalformedValueError{Type: en.Type, Reason: fmt.Sprintf("element %d declares %d bytes, stream has %d", i, declared, len(data))}
			}
			continue
		}
		parts[i] = data[:declared]
	}
	if missing != nil {
		return mapi.Value{}, missing
	}
	return dec.DecodeElements(en.Type, parts)
}

func (w *walker) insert(p string, set *Set, c Chunk) {
	if c.Err != nil {
		w.log.Debug("undecodable chunk", "path", p, "tag", fmt.Sprintf("0x%04X", c.Tag), "type", c.Type, "source", c.Source, "error", c.Err)
	}
	if prev, ok := set.Get(c.Tag); ok {
		w.log.Debug("chunk overwritten", "path", p, "tag", fmt.Sprintf("0x%04X", c.Tag), "previous", prev.Source, "current", c.Source)
	}
	set.put(c)
}

func (w *walker) nameID(st storage.Storage, p, name string, dec *mapi.Decoder, r *Result) (*NameIDGroup, error) {
	child := path.Join(p, name)
	sub, entries, err := w.open(st, child, name)
	if err != nil {
		return nil, err
	}
	g := &NameIDGroup{}
	if err := w.streams(sub, child, entries, &g.set, dec, r); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Kind == storage.KindStorage {
			w.unknown(r, child, e, "storage inside named-property storage")
		}
	}
	guids, _ := g.set.Bytes(nameIDGUIDTag)
	table, _ := g.set.Bytes(nameIDEntryTag)
	strs, _ := g.set.Bytes(nameIDStringTag)
	var skipped int
	g.names, skipped = buildNamedProperties(guids, table, strs)
	if skipped > 0 {
		w.log.Debug("skipped named-property records", "path", child, "count", skipped)
	}
	return g, nil
}
