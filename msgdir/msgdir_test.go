package msgdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dhcgn/msg-to-imap/config"
	"github.com/dhcgn/msg-to-imap/filter"
	"github.com/dhcgn/msg-to-imap/mapi"
	"github.com/dhcgn/msg-to-imap/model"
	"github.com/dhcgn/msg-to-imap/runner"
	"github.com/dhcgn/msg-to-imap/stats"
	"github.com/dhcgn/msg-to-imap/storage"
)

func unicodeZ(s string) []byte {
	return append(mapi.EncodeUTF16(s), 0, 0)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"b.msg":          "b",
		"A.MSG":          "a",
		"notes.txt":      "n",
		"sub/c.msg":      "c",
		"sub/deep/d.Msg": "d",
	})

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{"flat", false, []string{"A.MSG", "b.msg"}},
		{"recursive", true, []string{"A.MSG", "b.msg", "sub/c.msg", "sub/deep/d.Msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discover(dir, tt.recursive)
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			var rel []string
			for _, p := range got {
				r, _ := filepath.Rel(dir, p)
				rel = append(rel, filepath.ToSlash(r))
			}
			if !reflect.DeepEqual(rel, tt.want) {
				t.Errorf("Discover() = %v, want %v", rel, tt.want)
			}
		})
	}

	single := filepath.Join(dir, "notes.txt")
	got, err := Discover(single, false)
	if err != nil || len(got) != 1 || got[0] != single {
		t.Errorf("Discover(file) = %v, %v", got, err)
	}

	if _, err := Discover(filepath.Join(dir, "missing"), false); err == nil {
		t.Error("Discover(missing) error = nil")
	}
}

func containers() map[string]*storage.Dir {
	plain := storage.NewDir()
	plain.AddStream("__substg1.0_0037001F", unicodeZ("Quarterly report"))
	plain.AddStream("__substg1.0_1000001F", unicodeZ("Numbers attached."))
	plain.AddStream("__substg1.0_1035001F", unicodeZ("<q3@example.org>"))
	plain.AddStream("__substg1.0_5D01001F", unicodeZ("carol@example.org"))

	noisy := storage.NewDir()
	noisy.AddStream("__substg1.0_0037001F", unicodeZ("Lunch"))
	noisy.AddStream("__substg1.0_1000001F", unicodeZ("Pizza at noon, spam included."))
	noisy.AddStream("__substg1.0_0E04001F", []byte{0x41, 0x00, 0x42})
	noisy.AddStream("thumbs.db", []byte{1})

	return map[string]*storage.Dir{"plain": plain, "noisy": noisy}
}

func newTestReader(t *testing.T, opts Options, events *[]stats.Event) *fileReader {
	t.Helper()
	r, err := newReader(opts, nil)
	if err != nil {
		t.Fatalf("newReader() error = %v", err)
	}
	dirs := containers()
	r.open = func(data []byte) (storage.Storage, error) {
		d, ok := dirs[string(data)]
		if !ok {
			return nil, errors.New("not a compound file")
		}
		return d, nil
	}
	r.emit = func(evt stats.Event) { *events = append(*events, evt) }
	return r
}

func collect(t *testing.T, r *fileReader) ([]model.Envelope, error) {
	t.Helper()
	out := make(chan model.Envelope, 16)
	err := r.Stream(context.Background(), out)
	close(out)
	var envs []model.Envelope
	for env := range out {
		envs = append(envs, env)
	}
	return envs, err
}

func TestStream(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"1-plain.msg": "plain", "2-noisy.msg": "noisy"})

	var events []stats.Event
	envs, err := collect(t, newTestReader(t, Options{Input: dir}, &events))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envs))
	}

	first := envs[0].Message
	if first.ID != "q3@example.org" {
		t.Errorf("ID = %q, want q3@example.org", first.ID)
	}
	if first.Subject != "Quarterly report" || first.From != "carol@example.org" {
		t.Errorf("Subject, From = %q, %q", first.Subject, first.From)
	}
	if first.Hash == "" || first.Source != filepath.Join(dir, "1-plain.msg") {
		t.Errorf("Hash, Source = %q, %q", first.Hash, first.Source)
	}
	if !strings.Contains(string(first.Raw), "Subject: Quarterly report") {
		t.Errorf("rendered message lacks subject:\n%s", first.Raw)
	}

	second := envs[1].Message
	if second.ID != "2-noisy" {
		t.Errorf("ID = %q, want file name fallback", second.ID)
	}
	if second.UnknownEntries != 1 || second.DecodeFailures != 1 {
		t.Errorf("UnknownEntries, DecodeFailures = %d, %d, want 1, 1", second.UnknownEntries, second.DecodeFailures)
	}
	if first.Hash == second.Hash {
		t.Error("distinct files share a hash")
	}
	if len(events) != 0 {
		t.Errorf("unexpected events %v", events)
	}
}

func TestStream_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"1-plain.msg": "plain", "2-noisy.msg": "noisy"})

	var events []stats.Event
	opts := Options{Input: dir, Filter: filter.Options{ExcludeBody: []string{"spam"}}}
	envs, err := collect(t, newTestReader(t, opts, &events))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(envs) != 1 || envs[0].Message.Subject != "Quarterly report" {
		t.Fatalf("envelopes = %+v", envs)
	}
	if len(events) != 1 || events[0].Type != stats.EventTypeFiltered || events[0].Detail != "spam" {
		t.Errorf("events = %+v, want one filtered event", events)
	}
}

func TestStream_FailFastStopsAtDecodeError(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"1-broken.msg": "garbage", "2-plain.msg": "plain"})

	var events []stats.Event
	envs, err := collect(t, newTestReader(t, Options{Input: dir, FailFast: true}, &events))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(envs) != 1 || envs[0].Err == nil {
		t.Fatalf("envelopes = %+v, want a single error envelope", envs)
	}
	if envs[0].Message.Source != filepath.Join(dir, "1-broken.msg") {
		t.Errorf("Source = %q", envs[0].Message.Source)
	}
}

func TestStream_SkipsUnreadableFiles(t *testing.T) {
	sample, err := os.ReadFile(filepath.Join("..", "storage", "testdata", "test.msg"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a-corrupt.msg": "definitely not a compound file",
		"b-good.msg":    string(sample),
		"c-good.msg":    string(sample),
	})

	reader, err := newReader(Options{Input: dir}, nil)
	if err != nil {
		t.Fatalf("newReader() error = %v", err)
	}
	var events []stats.Event
	reader.emit = func(evt stats.Event) { events = append(events, evt) }

	envs, err := collect(t, reader)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if len(envs) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envs))
	}
	for i, name := range []string{"b-good.msg", "c-good.msg"} {
		env := envs[i]
		if env.Err != nil {
			t.Errorf("%s: unexpected error %v", name, env.Err)
		}
		if env.Message.Source != filepath.Join(dir, name) {
			t.Errorf("Source = %q, want %s", env.Message.Source, name)
		}
		if env.Message.Subject != "test" || env.Message.Attachments != 2 {
			t.Errorf("%s: Subject, Attachments = %q, %d", name, env.Message.Subject, env.Message.Attachments)
		}
	}

	if len(events) != 1 || events[0].Type != stats.EventTypeError || events[0].Err == nil {
		t.Fatalf("events = %+v, want one error event", events)
	}
	if events[0].Source != filepath.Join(dir, "a-corrupt.msg") {
		t.Errorf("error event Source = %q", events[0].Source)
	}
}

func TestNewReader_Errors(t *testing.T) {
	if _, err := NewReader(Options{Input: "  "}, nil); !errors.Is(err, ErrNoInput) {
		t.Errorf("NewReader(empty) error = %v, want %v", err, ErrNoInput)
	}
	opts := Options{Input: ".", Filter: filter.Options{IncludeBody: []string{"a"}, ExcludeBody: []string{"b"}}}
	if _, err := NewReader(opts, nil); !errors.Is(err, filter.ErrModeConflict) {
		t.Errorf("NewReader(conflict) error = %v, want %v", err, filter.ErrModeConflict)
	}
}

func TestProducer_ContinuesPastCorruptFile(t *testing.T) {
	sample, err := os.ReadFile(filepath.Join("..", "storage", "testdata", "test.msg"))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a-corrupt.msg": "garbage",
		"b-good.msg":    string(sample),
		"c-copy.msg":    string(sample),
	})

	r, err := runner.New(config.Config{StateDir: t.TempDir(), StateBackend: "jsonl", DryRun: true}, nil)
	if err != nil {
		t.Fatalf("runner.New() error = %v", err)
	}
	collector := stats.NewCollector()
	r.SubscribeStats("collector", func(ctx context.Context, events <-chan stats.Event) error {
		collector.Run(ctx, events)
		return nil
	})
	if _, err := NewProducer(Options{Input: dir}, r, nil); err != nil {
		t.Fatalf("NewProducer() error = %v", err)
	}
	var delivered []string
	r.AddStage("sink", func(ctx context.Context) error {
		for msg := range r.Deliveries() {
			delivered = append(delivered, filepath.Base(msg.Source))
		}
		return nil
	})

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !reflect.DeepEqual(delivered, []string{"b-good.msg", "c-copy.msg"}) {
		t.Errorf("delivered = %v, want [b-good.msg c-copy.msg]", delivered)
	}
	got := collector.Snapshot()
	if got.Errors != 1 || got.Scanned != 2 || got.Enqueued != 2 {
		t.Errorf("summary = %+v", got)
	}
	if got.LastError == nil {
		t.Error("LastError not recorded")
	}
}
