package stats

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestCollector_Apply(t *testing.T) {
	boom := errors.New("boom")
	events := []Event{
		{Stage: StageMsg, Type: EventTypeScanned},
		{Stage: StageMsg, Type: EventTypeScanned},
		{Stage: StageMsg, Type: EventTypeFiltered},
		{Stage: StageMsg, Type: EventTypeUnknownEntry, Count: 3},
		{Stage: StageMsg, Type: EventTypeMalformedChunk},
		{Stage: StageMsg, Type: EventTypeEnqueued},
		{Stage: StageMbox, Type: EventTypeExported},
		{Stage: StageIMAP, Type: EventTypeDryRunUpload},
		{Stage: StageIMAP, Type: EventTypeError, Err: boom},
	}

	ch := make(chan Event, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)

	c := NewCollector()
	c.Run(context.Background(), ch)
	got := c.Snapshot()

	want := Summary{
		Scanned:         2,
		Filtered:        1,
		Enqueued:        1,
		Exported:        1,
		DryRunUploaded:  1,
		UnknownEntries:  3,
		MalformedChunks: 1,
		Errors:          1,
		LastError:       boom,
	}
	if got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
	if got.Delivered() != 2 {
		t.Errorf("Delivered() = %d, want 2", got.Delivered())
	}
}

func TestWriteTop(t *testing.T) {
	var buf bytes.Buffer
	counts := map[string]int{"Unicode": 4, "Binary": 2, "Int32": 2, "Boolean": 1}
	if err := WriteTop(&buf, counts, 3); err != nil {
		t.Fatal(err)
	}
	want := "1. Unicode (4)\n2. Binary (2)\n3. Int32 (2)\n"
	if buf.String() != want {
		t.Errorf("WriteTop() = %q, want %q", buf.String(), want)
	}
}
