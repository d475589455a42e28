// Package mbox appends delivered messages to an mbox archive.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/msg-to-imap/model"
	"github.com/dhcgn/msg-to-imap/runner"
	"github.com/dhcgn/msg-to-imap/state"
	"github.com/dhcgn/msg-to-imap/stats"
)

var ErrPathEmpty = errors.New("mbox output path is empty")

// defaultSender fills the envelope line of messages without a usable
// sender address.
const defaultSender = "MAILER-DAEMON"

type Options struct {
	Path   string
	DryRun bool
}

type Exporter struct {
	opts       Options
	runner     *runner.Runner
	tracker    state.Tracker
	deliveries <-chan model.Message
	logger     *slog.Logger
}

func NewExporter(opts Options, r *runner.Runner, logger *slog.Logger) (*Exporter, error) {
	opts.Path = strings.TrimSpace(opts.Path)
	if opts.Path == "" {
		return nil, ErrPathEmpty
	}
	tracker := r.Tracker()
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	exporter := &Exporter{
		opts:       opts,
		runner:     r,
		tracker:    tracker,
		deliveries: r.Deliveries(),
		logger:     logger,
	}
	r.AddStage("mbox", exporter.run)
	return exporter, nil
}

func (e *Exporter) run(ctx context.Context) (err error) {
	var (
		file *os.File
		mw   *mboxlib.Writer
	)
	defer func() {
		if mw == nil {
			return
		}
		if cerr := mw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close mbox writer: %w", cerr)
		}
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close mbox: %w", cerr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-e.deliveries:
			if !ok {
				return nil
			}

			if e.opts.DryRun {
				if err := e.tracker.MarkProcessed(msg.Hash, msg.Source); err != nil {
					e.runner.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeError, MessageID: msg.ID, Source: msg.Source, Err: err})
					return err
				}
				e.runner.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeDryRunUpload, MessageID: msg.ID, Source: msg.Source})
				if e.logger != nil {
					e.logger.Debug("dry-run export", "messageID", msg.ID, "source", msg.Source, "path", e.opts.Path)
				}
				continue
			}

			if mw == nil {
				file, err = openArchive(e.opts.Path)
				if err != nil {
					e.runner.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeError, MessageID: msg.ID, Source: msg.Source, Err: err})
					return err
				}
				mw = mboxlib.NewWriter(file)
			}

			if err := writeMessage(mw, msg); err != nil {
				err = fmt.Errorf("export message %s: %w", msg.Source, err)
				e.runner.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeError, MessageID: msg.ID, Source: msg.Source, Err: err})
				return err
			}

			if err := e.tracker.MarkProcessed(msg.Hash, msg.Source); err != nil {
				e.runner.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeError, MessageID: msg.ID, Source: msg.Source, Err: err})
				return err
			}

			e.runner.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeExported, MessageID: msg.ID, Source: msg.Source})
			if e.logger != nil {
				e.logger.Debug("exported message", "messageID", msg.ID, "source", msg.Source, "path", e.opts.Path)
			}
		}
	}
}

// openArchive opens path for appending so reruns extend the archive.
func openArchive(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create mbox directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	return file, nil
}

func writeMessage(mw *mboxlib.Writer, msg model.Message) error {
	from := msg.From
	if from == "" || strings.ContainsAny(from, " \t") {
		from = defaultSender
	}
	date := msg.ReceivedAt
	if date.IsZero() {
		date = time.Now()
	}

	w, err := mw.CreateMessage(from, date)
	if err != nil {
		return err
	}
	_, err = w.Write(msg.Raw)
	return err
}
