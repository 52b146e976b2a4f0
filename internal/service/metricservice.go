package service

import (
	"github.com/rs/zerolog/log"

	"github.com/idudko/go-metric-stream/internal/batch"
	"github.com/idudko/go-metric-stream/internal/codec"
	"github.com/idudko/go-metric-stream/internal/model"
	"github.com/idudko/go-metric-stream/internal/walker"
	"github.com/idudko/go-metric-stream/pkg/pool"
)

// TreeReader gives serialized read access to a metric tree. The tree must not
// change while fn runs.
type TreeReader interface {
	Read(fn func(t *model.Tree))
}

// Stats summarizes one Get call.
type Stats struct {
	Batches int
	Entries int
}

// Option configures a MetricService.
type Option func(*MetricService)

// WithEncoder sets the entry encoder. The default is codec.Proto.
func WithEncoder(enc batch.Encoder) Option {
	return func(s *MetricService) {
		s.enc = enc
	}
}

// WithMaxEntries sets the number of entries per batch. The default is
// batch.MaxEntries.
func WithMaxEntries(n int) Option {
	return func(s *MetricService) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// MetricService streams a metric tree to batch sinks.
//
// Get may be called concurrently; every call works on its own buffer.
type MetricService struct {
	source     TreeReader
	enc        batch.Encoder
	maxEntries int
	bufferSize int
	buffers    *pool.Pool[*buffer]
}

// NewMetricService returns a service that streams the tree read from source.
func NewMetricService(source TreeReader, opts ...Option) *MetricService {
	s := &MetricService{
		source:     source,
		enc:        codec.Proto{},
		maxEntries: batch.MaxEntries,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.bufferSize = batch.BufferSize(s.enc, s.maxEntries)
	s.buffers = pool.New(func() *buffer {
		return &buffer{b: make([]byte, 0, s.bufferSize)}
	})
	return s
}

// BufferSize returns the size of the batch buffer used by each Get call.
func (s *MetricService) BufferSize() int { return s.bufferSize }

// Get streams every metric to sink: root metrics first, then root groups,
// then whatever remains in the last batch. sink.Finish is always called
// with the first error encountered, or nil.
//
// Get blocks until the whole tree has been sent or a step fails.
func (s *MetricService) Get(sink batch.Sink) (Stats, error) {
	buf := s.buffers.Get()
	defer s.buffers.Put(buf)

	counted := &countingSink{Sink: sink}
	writer := batch.NewWriter(buf.b, counted, s.enc, s.maxEntries)
	entries := &entryCounter{next: writer}
	w := walker.New(entries)

	var status error
	update := func(err error) {
		if status == nil {
			status = err
		}
	}

	s.source.Read(func(t *model.Tree) {
		update(w.WalkMetrics(t.Metrics))
		update(w.WalkGroups(t.Groups))
	})
	update(writer.Flush())

	if err := sink.Finish(status); err != nil {
		log.Warn().Err(err).Msg("failed to finish metric stream")
	}

	stats := Stats{Batches: counted.batches, Entries: entries.n}
	if status != nil {
		log.Error().Err(status).
			Int("batches", stats.Batches).
			Int("entries", stats.Entries).
			Msg("metric stream failed")
	} else {
		log.Debug().
			Int("batches", stats.Batches).
			Int("entries", stats.Entries).
			Msg("metric stream sent")
	}
	return stats, status
}

type buffer struct {
	b []byte
}

func (b *buffer) Reset() {
	b.b = b.b[:0]
}

type countingSink struct {
	batch.Sink
	batches int
}

func (s *countingSink) Write(b []byte) error {
	if err := s.Sink.Write(b); err != nil {
		return err
	}
	s.batches++
	return nil
}

type entryCounter struct {
	next walker.Writer
	n    int
}

func (c *entryCounter) Write(m *model.Metric, path []model.Token) error {
	if err := c.next.Write(m, path); err != nil {
		return err
	}
	c.n++
	return nil
}
