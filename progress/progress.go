package progress

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/msg-to-imap/stats"
)

const maxTitle = 40

// Bar renders a terminal progress bar advanced once per scanned file.
type Bar struct {
	pb          *pterm.ProgressbarPrinter
	total       int
	alreadyDone int
	mu          sync.Mutex
	enabled     bool
}

// New creates a progress bar over total files. A disabled bar ignores
// every update.
func New(total, alreadyDone int, enabled bool) *Bar {
	bar := &Bar{
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     enabled && total > 0,
	}
	if !bar.enabled {
		return bar
	}

	pterm.Info.Printf("Files found: %d\n", total)
	pterm.Info.Printf("Already delivered in earlier runs: %d\n", alreadyDone)
	pterm.Println()

	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Decoding messages").
		Start()
	if err != nil {
		bar.enabled = false
		return bar
	}
	bar.pb = pb
	return bar
}

func (b *Bar) Enabled() bool {
	return b.enabled
}

// title shortens the file name of evt for the bar title.
func title(evt stats.Event) string {
	name := filepath.Base(evt.Source)
	if evt.Source == "" {
		name = evt.MessageID
	}
	if len(name) > maxTitle {
		name = name[:maxTitle-3] + "..."
	}
	return name
}

func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned, stats.EventTypeFiltered:
		b.pb.Increment()
		if t := title(evt); t != "" {
			b.pb.UpdateTitle("Processing: " + t)
		}
	case stats.EventTypeUnknownEntry:
		pterm.Warning.Printf("%s: %d unrecognized entries\n", title(evt), evt.Count)
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
	pterm.Success.Println("Processing complete!")
}

// Subscriber feeds events into the bar and stops it when the stream ends.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// Reporter prints a summary table once the pipeline finishes.
type Reporter struct {
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewReporter subscribes bar and a summary printer to stream when the bar
// is enabled.
func NewReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collect)
	}
	return reporter
}

func (r *Reporter) collect(ctx context.Context, events <-chan stats.Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()

	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	_ = pterm.DefaultTable.WithHasHeader().WithData(summaryTable(summary, time.Since(r.started))).Render()
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
	return nil
}

func summaryTable(s stats.Summary, duration time.Duration) pterm.TableData {
	return pterm.TableData{
		{"Metric", "Value"},
		{"Duration", duration.Round(time.Millisecond).String()},
		{"Scanned", strconv.Itoa(s.Scanned)},
		{"Filtered", strconv.Itoa(s.Filtered)},
		{"Enqueued", strconv.Itoa(s.Enqueued)},
		{"Uploaded", strconv.Itoa(s.Uploaded)},
		{"Exported", strconv.Itoa(s.Exported)},
		{"Dry-run", strconv.Itoa(s.DryRunUploaded)},
		{"Duplicates (skipped)", strconv.Itoa(s.Duplicates)},
		{"Unknown entries", strconv.Itoa(s.UnknownEntries)},
		{"Malformed chunks", strconv.Itoa(s.MalformedChunks)},
		{"Errors", strconv.Itoa(s.Errors)},
	}
}
