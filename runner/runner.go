package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/msg-to-imap/config"
	"github.com/dhcgn/msg-to-imap/model"
	"github.com/dhcgn/msg-to-imap/state"
	"github.com/dhcgn/msg-to-imap/stats"
)

var ErrHashMissing = errors.New("message missing content hash")

type StageFunc func(context.Context) error

type subscriber struct {
	name   string
	fn     func(context.Context, <-chan stats.Event) error
	events chan stats.Event
}

type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	intake     chan model.Envelope
	deliveries chan model.Message
	events     chan stats.Event

	tracker state.Tracker

	subMu       sync.Mutex
	subscribers []*subscriber

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeIntakeOnce     sync.Once
	closeDeliveriesOnce sync.Once
	closeEventsOnce     sync.Once
	since               time.Time
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	tracker, err := state.Open(cfg.StateBackend, cfg.StateDir, !cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("state tracker: %w", err)
	}
	return newRunner(cfg, logger, tracker), nil
}

func newRunner(cfg config.Config, logger *slog.Logger, tracker state.Tracker) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		intake:     make(chan model.Envelope, 32),
		deliveries: make(chan model.Message, 32),
		events:     make(chan stats.Event, 128),
		tracker:    tracker,
	}

	r.AddStage("bridge", r.bridge)
	return r
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

// Intake receives envelopes from the producer stage.
func (r *Runner) Intake() chan<- model.Envelope {
	return r.intake
}

func (r *Runner) CloseIntake() {
	r.closeIntakeOnce.Do(func() {
		close(r.intake)
	})
}

// Deliveries carries messages that passed deduplication to the sink stage.
func (r *Runner) Deliveries() <-chan model.Message {
	return r.deliveries
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

// SubscribeStats registers fn to receive every event. Each subscriber gets
// its own channel; subscriptions must happen before Start.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, &subscriber{name: name, fn: fn, events: make(chan stats.Event, 128)})
	r.subMu.Unlock()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Start waits for every stage, drains the event stream into the
// subscribers and closes the tracker. It returns the first stage error.
func (r *Runner) Start() error {
	r.since = time.Now()

	r.subMu.Lock()
	subs := r.subscribers
	r.subMu.Unlock()

	for _, sub := range subs {
		r.statsWG.Add(1)
		go func(sub *subscriber) {
			defer r.statsWG.Done()
			if err := sub.fn(r.ctx, sub.events); err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stats: %w", sub.name, err))
			}
		}(sub)
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		r.dispatch(subs)
	}()

	r.workWG.Wait()
	r.closeEvents()
	<-dispatched
	r.statsWG.Wait()

	r.cancel()

	if err := r.tracker.Close(); err != nil {
		r.fail(fmt.Errorf("close state tracker: %w", err))
	}

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// dispatch copies the shared event stream to every subscriber. A
// subscriber that stopped reading is dropped once the run is cancelled.
func (r *Runner) dispatch(subs []*subscriber) {
	defer func() {
		for _, sub := range subs {
			close(sub.events)
		}
	}()
	for evt := range r.events {
		for _, sub := range subs {
			select {
			case sub.events <- evt:
			case <-r.ctx.Done():
			}
		}
	}
}

func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeDeliveries()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.intake:
			if !ok {
				return nil
			}

			if envelope.Err != nil {
				r.EmitEvent(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeError, Source: envelope.Message.Source, Err: envelope.Err})
				r.fail(fmt.Errorf("msg envelope: %w", envelope.Err))
				continue
			}

			msg := envelope.Message
			r.EmitEvent(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeScanned, MessageID: msg.ID, Source: msg.Source})
			if msg.UnknownEntries > 0 {
				r.EmitEvent(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeUnknownEntry, MessageID: msg.ID, Source: msg.Source, Count: msg.UnknownEntries})
			}
			if msg.DecodeFailures > 0 {
				r.EmitEvent(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeMalformedChunk, MessageID: msg.ID, Source: msg.Source, Count: msg.DecodeFailures})
			}

			if msg.Hash == "" {
				err := fmt.Errorf("%s: %w", msg.Source, ErrHashMissing)
				r.EmitEvent(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeError, Source: msg.Source, Err: err})
				r.fail(err)
				continue
			}

			if r.tracker.AlreadyProcessed(msg.Hash) {
				r.EmitEvent(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeDuplicate, MessageID: msg.ID, Source: msg.Source})
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.deliveries <- msg:
				r.EmitEvent(stats.Event{Stage: stats.StageMsg, Type: stats.EventTypeEnqueued, MessageID: msg.ID, Source: msg.Source})
			}
		}
	}
}

func (r *Runner) closeDeliveries() {
	r.closeDeliveriesOnce.Do(func() {
		close(r.deliveries)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
