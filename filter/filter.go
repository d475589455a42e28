// Package filter selects messages by regular expressions over their
// rendered header block and decoded body text.
package filter

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrModeConflict = errors.New("include and exclude filters are mutually exclusive")

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Text is the part of a message the patterns run against. Body is the
// decoded plain text (or HTML when there is no plain text), not the
// transfer-encoded MIME body.
type Text struct {
	Header string
	Body   string
}

// TextOf takes the header block of a rendered RFC 5322 message and pairs
// it with body.
func TextOf(raw []byte, body string) Text {
	header := raw
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		header = raw[:idx]
	} else if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		header = raw[:idx]
	}
	return Text{Header: string(header), Body: body}
}

// Verdict explains a decision. Pattern and Field are empty when no
// pattern matched.
type Verdict struct {
	Allowed bool
	Field   string
	Pattern string
}

type rule struct {
	field string
	re    *regexp.Regexp
}

// Filter holds compiled patterns. It runs in include mode or exclude mode,
// never both.
type Filter struct {
	include []rule
	exclude []rule
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	var f Filter
	for _, group := range []struct {
		flag     string
		field    string
		patterns []string
		dst      *[]rule
	}{
		{"include-header", "header", opts.IncludeHeader, &f.include},
		{"include-body", "body", opts.IncludeBody, &f.include},
		{"exclude-header", "header", opts.ExcludeHeader, &f.exclude},
		{"exclude-body", "body", opts.ExcludeBody, &f.exclude},
	} {
		compiled, err := compilePatterns(group.patterns)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern: %w", group.flag, err)
		}
		for _, re := range compiled {
			*group.dst = append(*group.dst, rule{field: group.field, re: re})
		}
	}
	if len(f.include) > 0 && len(f.exclude) > 0 {
		return nil, ErrModeConflict
	}
	return &f, nil
}

// Active reports whether any pattern is configured.
func (f *Filter) Active() bool {
	return len(f.include) > 0 || len(f.exclude) > 0
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(t Text) bool {
	return f.Decide(t).Allowed
}

// Decide evaluates t. In include mode a message needs one matching
// pattern; in exclude mode one matching pattern rejects it.
func (f *Filter) Decide(t Text) Verdict {
	switch {
	case len(f.include) > 0:
		if r, ok := firstMatch(f.include, t); ok {
			return Verdict{Allowed: true, Field: r.field, Pattern: r.re.String()}
		}
		return Verdict{Allowed: false}
	case len(f.exclude) > 0:
		if r, ok := firstMatch(f.exclude, t); ok {
			return Verdict{Allowed: false, Field: r.field, Pattern: r.re.String()}
		}
	}
	return Verdict{Allowed: true}
}

func firstMatch(rules []rule, t Text) (rule, bool) {
	for _, r := range rules {
		text := t.Header
		if r.field == "body" {
			text = t.Body
		}
		if r.re.MatchString(text) {
			return r, true
		}
	}
	return rule{}, false
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
