package batch

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/idudko/go-metric-stream/internal/codec"
	"github.com/idudko/go-metric-stream/internal/model"
)

// recordingSink keeps a copy of every batch it receives.
type recordingSink struct {
	batches  [][]byte
	failOn   int
	finished []error
}

func (s *recordingSink) Write(b []byte) error {
	if s.failOn > 0 && len(s.batches)+1 == s.failOn {
		s.batches = append(s.batches, nil)
		return errors.New("transport closed")
	}
	s.batches = append(s.batches, bytes.Clone(b))
	return nil
}

func (s *recordingSink) Finish(status error) error {
	s.finished = append(s.finished, status)
	return nil
}

func newTestWriter(sink Sink, limit int) (*Writer, []byte) {
	enc := codec.Proto{}
	buf := make([]byte, 0, BufferSize(enc, limit))
	return NewWriter(buf, sink, enc, limit), buf
}

func TestWriter_FlushCadence(t *testing.T) {
	tests := []struct {
		metrics int
		limit   int
		batches int
	}{
		{metrics: 0, limit: 3, batches: 0},
		{metrics: 1, limit: 3, batches: 1},
		{metrics: 3, limit: 3, batches: 1},
		{metrics: 4, limit: 3, batches: 2},
		{metrics: 7, limit: 2, batches: 4},
		{metrics: 9, limit: 1, batches: 9},
	}

	for _, tt := range tests {
		sink := &recordingSink{}
		w, _ := newTestWriter(sink, tt.limit)
		for i := range tt.metrics {
			if err := w.Write(model.NewInt(model.Token(i), int64(i)), []model.Token{model.Token(i)}); err != nil {
				t.Fatalf("Write: %v", err)
			}
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}

		if len(sink.batches) != tt.batches {
			t.Errorf("metrics=%d limit=%d: expected %d batches, got %d", tt.metrics, tt.limit, tt.batches, len(sink.batches))
		}

		total := 0
		for _, b := range sink.batches {
			entries, err := codec.DecodeBatch(b)
			if err != nil {
				t.Fatalf("DecodeBatch: %v", err)
			}
			if len(entries) > tt.limit {
				t.Errorf("batch holds %d entries, limit %d", len(entries), tt.limit)
			}
			total += len(entries)
		}
		if total != tt.metrics {
			t.Errorf("expected %d entries in total, got %d", tt.metrics, total)
		}
	}
}

func TestWriter_AutoFlushAtLimit(t *testing.T) {
	sink := &recordingSink{}
	w, _ := newTestWriter(sink, 2)

	w.Write(model.NewInt(1, 1), []model.Token{1})
	if len(sink.batches) != 0 || w.Len() != 1 {
		t.Fatalf("expected pending entry and no batch, got len=%d batches=%d", w.Len(), len(sink.batches))
	}
	w.Write(model.NewInt(2, 2), []model.Token{2})
	if len(sink.batches) != 1 || w.Len() != 0 || w.Buffered() != 0 {
		t.Fatalf("expected flush at limit, got len=%d buffered=%d batches=%d", w.Len(), w.Buffered(), len(sink.batches))
	}
}

func TestWriter_BufferReuse(t *testing.T) {
	sink := &recordingSink{}
	w, buf := newTestWriter(sink, 2)

	w.Write(model.NewFloat(1, 1.5), []model.Token{1, 1})
	w.Write(model.NewFloat(2, 2.5), []model.Token{1, 2})
	w.Write(model.NewFloat(3, 3.5), []model.Token{3})
	w.Flush()

	if cap(w.buf) != cap(buf) || &w.buf[:1][0] != &buf[:1][0] {
		t.Error("writer replaced its buffer")
	}

	last, err := codec.DecodeBatch(sink.batches[1])
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(last) != 1 || !slices.Equal(last[0].Path, []model.Token{3}) {
		t.Errorf("second batch leaked data from the first: %+v", last)
	}
}

func TestWriter_FlushEmptyIsNoop(t *testing.T) {
	sink := &recordingSink{}
	w, _ := newTestWriter(sink, 3)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(sink.batches) != 0 {
		t.Errorf("expected no batch, got %d", len(sink.batches))
	}
}

func TestWriter_EncodingErrorKeepsBatch(t *testing.T) {
	sink := &recordingSink{}
	w, _ := newTestWriter(sink, 3)

	w.Write(model.NewInt(1, 10), []model.Token{1})
	before := w.Buffered()

	err := w.Write(&model.Metric{Name: 2}, []model.Token{2})
	if !errors.Is(err, ErrEncoding) || !errors.Is(err, codec.ErrInvalidValue) {
		t.Fatalf("expected ErrEncoding wrapping ErrInvalidValue, got %v", err)
	}
	if w.Len() != 1 || w.Buffered() != before {
		t.Errorf("failed write changed the batch: len=%d buffered=%d", w.Len(), w.Buffered())
	}

	w.Write(model.NewInt(3, 30), []model.Token{3})
	w.Flush()
	entries, err := codec.DecodeBatch(sink.batches[0])
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(entries) != 2 || entries[1].Value.AsInt() != 30 {
		t.Errorf("unexpected batch after encoding error: %+v", entries)
	}
}

func TestWriter_UndersizedBuffer(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(make([]byte, 0, 4), sink, codec.Proto{}, 3)

	err := w.Write(model.NewFloat(1, 1), []model.Token{1, 2})
	if !errors.Is(err, ErrEncoding) || !errors.Is(err, codec.ErrShortBuffer) {
		t.Errorf("expected ErrEncoding wrapping ErrShortBuffer, got %v", err)
	}
}

func TestWriter_SinkError(t *testing.T) {
	sink := &recordingSink{failOn: 1}
	w, _ := newTestWriter(sink, 1)

	err := w.Write(model.NewInt(1, 1), []model.Token{1})
	if !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("expected ErrSinkWrite, got %v", err)
	}
	if w.Len() != 0 || w.Buffered() != 0 {
		t.Errorf("expected writer reset after sink error, got len=%d buffered=%d", w.Len(), w.Buffered())
	}

	if err := w.Write(model.NewInt(2, 2), []model.Token{2}); err != nil {
		t.Errorf("expected writer usable after sink error, got %v", err)
	}
}

func BenchmarkWriter_Write(b *testing.B) {
	w, _ := newTestWriter(discardSink{}, MaxEntries)
	m := model.NewFloat(1, 42)
	path := []model.Token{1, 2, 3}
	for b.Loop() {
		w.Write(m, path)
	}
}

type discardSink struct{}

func (discardSink) Write([]byte) error  { return nil }
func (discardSink) Finish(error) error { return nil }
