package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageMsg  Stage = "msg"
	StageIMAP Stage = "imap"
	StageMbox Stage = "mbox"
)

type EventType string

const (
	EventTypeScanned        EventType = "scanned"
	EventTypeFiltered       EventType = "filtered"
	EventTypeEnqueued       EventType = "enqueued"
	EventTypeUploaded       EventType = "uploaded"
	EventTypeExported       EventType = "exported"
	EventTypeDryRunUpload   EventType = "dry_run_uploaded"
	EventTypeDuplicate      EventType = "duplicate"
	EventTypeUnknownEntry   EventType = "unknown_entry"
	EventTypeMalformedChunk EventType = "malformed_chunk"
	EventTypeError          EventType = "error"
)

// Event is one pipeline observation. Count weighs diagnostic events that
// summarize several findings in one file; zero counts as one.
type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Source    string
	Count     int
	Err       error
	Detail    string
}

func (e Event) weight() int {
	if e.Count > 0 {
		return e.Count
	}
	return 1
}

type Summary struct {
	Scanned         int
	Filtered        int
	Enqueued        int
	Uploaded        int
	Exported        int
	DryRunUploaded  int
	Duplicates      int
	UnknownEntries  int
	MalformedChunks int
	Errors          int
	LastError       error
}

// Delivered counts messages handed to a sink, real or simulated.
func (s Summary) Delivered() int {
	return s.Uploaded + s.Exported + s.DryRunUploaded
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"filtered", s.Filtered,
		"enqueued", s.Enqueued,
		"uploaded", s.Uploaded,
		"exported", s.Exported,
		"dryRunUploaded", s.DryRunUploaded,
		"duplicates", s.Duplicates,
		"unknownEntries", s.UnknownEntries,
		"malformedChunks", s.MalformedChunks,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeEnqueued:
		c.summary.Enqueued++
	case EventTypeUploaded:
		c.summary.Uploaded++
	case EventTypeExported:
		c.summary.Exported++
	case EventTypeDryRunUpload:
		c.summary.DryRunUploaded++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeUnknownEntry:
		c.summary.UnknownEntries += evt.weight()
	case EventTypeMalformedChunk:
		c.summary.MalformedChunks += evt.weight()
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// WriteTop writes the limit most frequent keys of counts, ties broken by
// key.
func WriteTop(w io.Writer, counts map[string]int, limit int) error {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	for i := 0; i < limit && i < len(keys); i++ {
		if _, err := fmt.Fprintf(w, "%d. %s (%d)\n", i+1, keys[i], counts[keys[i]]); err != nil {
			return err
		}
	}
	return nil
}
