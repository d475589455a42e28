package chunks

import (
	"sort"
)

// Result is the outcome of parsing one message container. Groups starts
// with the message group; the remaining groups follow in container order,
// or in normalized order when Options.Order is OrderNormalized.
type Result struct {
	Groups  []Group
	Unknown []UnknownEntry
	// Names is shared by the results of embedded messages and resolves
	// against the outermost container's named-property storage.
	Names    *NamedProperties
	CodePage int
	Path     string
	Depth    int

	message *MessageGroup
}

func (r *Result) Message() *MessageGroup {
	return r.message
}

// Recipients returns the recipient groups ordered by index.
func (r *Result) Recipients() []*RecipientGroup {
	var out []*RecipientGroup
	for _, g := range r.Groups {
		if rg, ok := g.(*RecipientGroup); ok {
			out = append(out, rg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// Attachments returns the attachment groups ordered by index.
func (r *Result) Attachments() []*AttachmentGroup {
	var out []*AttachmentGroup
	for _, g := range r.Groups {
		if ag, ok := g.(*AttachmentGroup); ok {
			out = append(out, ag)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

func (r *Result) NameID() (*NameIDGroup, bool) {
	for _, g := range r.Groups {
		if ng, ok := g.(*NameIDGroup); ok {
			return ng, true
		}
	}
	return nil, false
}

// Resolve names a custom tag. It always succeeds; see PropertyName.Resolved.
func (r *Result) Resolve(tag uint16) PropertyName {
	return r.Names.Resolve(tag)
}

// Failure is a chunk that could not be decoded, with the group holding it.
type Failure struct {
	Group Group
	Chunk Chunk
}

// Failures lists the undecodable chunks of this container, excluding
// embedded messages.
func (r *Result) Failures() []Failure {
	var out []Failure
	for _, g := range r.Groups {
		for _, c := range g.Chunks().Failures() {
			out = append(out, Failure{Group: g, Chunk: c})
		}
	}
	return out
}

// Walk calls fn for r and then, depth first, for every embedded message
// result in attachment order.
func (r *Result) Walk(fn func(*Result)) {
	fn(r)
	for _, a := range r.Attachments() {
		if e, ok := a.Embedded(); ok {
			e.Walk(fn)
		}
	}
}

func groupRank(g Group) (int, uint32) {
	switch v := g.(type) {
	case *MessageGroup:
		return 0, 0
	case *RecipientGroup:
		return 1, v.index
	case *AttachmentGroup:
		return 2, v.index
	default:
		return 3, 0
	}
}

func normalizeOrder(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		ri, ii := groupRank(groups[i])
		rj, ij := groupRank(groups[j])
		if ri != rj {
			return ri < rj
		}
		return ii < ij
	})
}
