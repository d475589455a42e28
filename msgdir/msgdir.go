// Package msgdir discovers .msg files, decodes them and feeds the rendered
// messages into the pipeline.
package msgdir

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhcgn/msg-to-imap/chunks"
	"github.com/dhcgn/msg-to-imap/filter"
	"github.com/dhcgn/msg-to-imap/message"
	"github.com/dhcgn/msg-to-imap/model"
	"github.com/dhcgn/msg-to-imap/runner"
	"github.com/dhcgn/msg-to-imap/stats"
	"github.com/dhcgn/msg-to-imap/storage"
)

var ErrNoInput = errors.New("input path is empty")

const extension = ".msg"

type Options struct {
	Input     string
	Recursive bool
	Parse     chunks.Options
	Filter    filter.Options
	// FailFast stops the stream at the first file that cannot be decoded.
	// Otherwise the file is reported and skipped.
	FailFast bool
}

type Reader interface {
	Stream(ctx context.Context, out chan<- model.Envelope) error
}

// openFunc turns file contents into a container.
type openFunc func(data []byte) (storage.Storage, error)

func openCFB(data []byte) (storage.Storage, error) {
	return storage.OpenCFB(bytes.NewReader(data))
}

type fileReader struct {
	input     string
	recursive bool
	failFast  bool
	parse     chunks.Options
	filter    *filter.Filter
	open      openFunc
	emit      func(stats.Event)
	logger    *slog.Logger
}

func NewReader(opts Options, logger *slog.Logger) (Reader, error) {
	r, err := newReader(opts, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newReader(opts Options, logger *slog.Logger) (*fileReader, error) {
	input := strings.TrimSpace(opts.Input)
	if input == "" {
		return nil, ErrNoInput
	}
	f, err := filter.New(opts.Filter)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	parse := opts.Parse
	if parse.Logger == nil {
		parse.Logger = logger
	}
	return &fileReader{
		input:     input,
		recursive: opts.Recursive,
		failFast:  opts.FailFast,
		parse:     parse,
		filter:    f,
		open:      openCFB,
		emit:      func(stats.Event) {},
		logger:    logger,
	}, nil
}

// Discover lists the .msg files under input in lexical order. A file input
// is returned as is, whatever its extension.
func Discover(input string, recursive bool) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	var files []string
	err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != input && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// CountFiles reports how many files Discover would return.
func CountFiles(input string, recursive bool) (int, error) {
	files, err := Discover(input, recursive)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func (f *fileReader) Stream(ctx context.Context, out chan<- model.Envelope) error {
	files, err := Discover(f.input, f.recursive)
	if err != nil {
		return f.emitError(ctx, out, f.input, err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, text, err := f.decode(path)
		if err != nil {
			if f.failFast {
				return f.emitError(ctx, out, path, err)
			}
			f.logger.Error("skipping unreadable message", "source", path, "err", err)
			f.emit(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeError, Source: path, Err: err})
			continue
		}

		if verdict := f.filter.Decide(text); !verdict.Allowed {
			f.logger.Debug("message filtered", "source", path, "field", verdict.Field, "pattern", verdict.Pattern)
			f.emit(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeFiltered, MessageID: msg.ID, Source: path, Detail: verdict.Pattern})
			continue
		}

		if err := f.emitEnvelope(ctx, out, model.Envelope{Message: msg}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fileReader) decode(path string) (model.Message, filter.Text, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Message{}, filter.Text{}, fmt.Errorf("read %s: %w", path, err)
	}

	root, err := f.open(data)
	if err != nil {
		return model.Message{}, filter.Text{}, fmt.Errorf("%s: %w", path, err)
	}
	res, err := chunks.Parse(root, f.parse)
	if err != nil {
		return model.Message{}, filter.Text{}, fmt.Errorf("parse %s: %w", path, err)
	}

	m := message.New(res)
	raw, err := message.Render(m)
	if err != nil {
		return model.Message{}, filter.Text{}, fmt.Errorf("render %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	msg := model.Message{
		ID:          messageID(m, path),
		Hash:        base64.StdEncoding.EncodeToString(sum[:]),
		Source:      path,
		ReceivedAt:  m.Date(),
		Size:        int64(len(raw)),
		Raw:         raw,
		Attachments: len(res.Attachments()),
	}
	msg.Subject, _ = m.Subject()
	if from, err := m.SenderEmail(); err == nil {
		msg.From = from
	} else {
		msg.From, _ = m.DisplayFrom()
	}

	res.Walk(func(r *chunks.Result) {
		msg.UnknownEntries += len(r.Unknown)
		msg.DecodeFailures += len(r.Failures())
	})
	if msg.UnknownEntries > 0 || msg.DecodeFailures > 0 {
		f.logger.Debug("decode diagnostics", "source", path, "unknownEntries", msg.UnknownEntries, "malformedChunks", msg.DecodeFailures)
	}

	return msg, filter.TextOf(raw, bodyText(m)), nil
}

func messageID(m *message.Message, path string) string {
	if id, err := m.MessageID(); err == nil && id != "" {
		return id
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func bodyText(m *message.Message) string {
	if body, err := m.Body(); err == nil {
		return body
	}
	html, _ := m.BodyHTML()
	return html
}

func (f *fileReader) emitError(ctx context.Context, out chan<- model.Envelope, source string, err error) error {
	f.logger.Error("msg stream error", "source", source, "err", err)
	return f.emitEnvelope(ctx, out, model.Envelope{Message: model.Message{Source: source}, Err: err})
}

func (f *fileReader) emitEnvelope(ctx context.Context, out chan<- model.Envelope, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- env:
		return nil
	}
}

type Producer struct {
	reader *fileReader
	runner *runner.Runner
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	reader, err := newReader(opts, logger)
	if err != nil {
		return nil, err
	}
	reader.emit = r.EmitEvent
	producer := &Producer{reader: reader, runner: r}
	r.AddStage("msg", producer.run)
	return producer, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseIntake()
	return p.reader.Stream(ctx, p.runner.Intake())
}
