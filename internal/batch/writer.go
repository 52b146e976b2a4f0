package batch

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/idudko/go-metric-stream/internal/model"
)

// MaxEntries is the number of entries packed into one batch.
//
// TODO: size batches from the transport MTU instead of a fixed count; a gRPC
// stream can carry far more than three entries per message.
const MaxEntries = 3

var (
	// ErrEncoding wraps failures to encode an entry into the batch buffer.
	ErrEncoding = errors.New("batch: encoding failed")

	// ErrSinkWrite wraps failures of Sink.Write.
	ErrSinkWrite = errors.New("batch: sink rejected batch")
)

// Sink consumes finished batches.
type Sink interface {
	// Write accepts one batch. The slice is reused after Write returns, so
	// implementations must copy what they keep.
	Write(batch []byte) error

	// Finish closes the stream with the final status; nil means success. It
	// is called exactly once per stream.
	Finish(status error) error
}

// Encoder appends one encoded entry to a buffer.
type Encoder interface {
	// MaxEntrySize is the worst-case size of one encoded entry.
	MaxEntrySize() int

	// AppendEntry appends the entry for path and v to dst without growing it.
	// On error dst must be returned unmodified.
	AppendEntry(dst []byte, path []model.Token, v model.Value) ([]byte, error)
}

// BufferSize returns the capacity a buffer needs to hold entries worst-case
// entries of enc.
func BufferSize(enc Encoder, entries int) int {
	return entries * enc.MaxEntrySize()
}

// Writer packs entries into a caller-owned buffer and hands the buffer to a
// Sink each time it holds a full batch.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	buf   []byte
	sink  Sink
	enc   Encoder
	limit int
	count int
}

// NewWriter returns a Writer that encodes into buf and flushes to sink every
// limit entries. buf must have room for limit worst-case entries; see
// BufferSize. Its length is ignored.
func NewWriter(buf []byte, sink Sink, enc Encoder, limit int) *Writer {
	if limit <= 0 {
		limit = MaxEntries
	}
	return &Writer{
		buf:   buf[:0],
		sink:  sink,
		enc:   enc,
		limit: limit,
	}
}

// Write encodes the metric under path into the current batch and flushes the
// batch when it becomes full.
//
// A failed encode leaves the batch as it was before the call.
func (w *Writer) Write(m *model.Metric, path []model.Token) error {
	buf, err := w.enc.AppendEntry(w.buf, path, m.Value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	w.buf = buf
	w.count++

	if w.count == w.limit {
		return w.Flush()
	}
	return nil
}

// Flush sends the pending batch, if any, and resets the writer. The writer is
// reset even when the sink rejects the batch.
func (w *Writer) Flush() error {
	if w.count == 0 {
		return nil
	}

	log.Debug().
		Int("entries", w.count).
		Int("bytes", len(w.buf)).
		Msg("flushing metric batch")

	err := w.sink.Write(w.buf)
	w.Reset()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}
	return nil
}

// Reset discards the pending batch. The buffer is kept for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.count = 0
}

// Len returns the number of entries in the pending batch.
func (w *Writer) Len() int { return w.count }

// Buffered returns the encoded bytes of the pending batch.
func (w *Writer) Buffered() int { return len(w.buf) }
