package handler

import (
	"encoding/binary"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/idudko/go-metric-stream/internal/audit"
	"github.com/idudko/go-metric-stream/internal/model"
	"github.com/idudko/go-metric-stream/internal/service"
	"github.com/idudko/go-metric-stream/pkg/hash"
)

const (
	// ContentType is the media type of a metric stream body: a sequence of
	// uvarint-length-prefixed batches.
	ContentType = "application/x-metric-stream"

	// StatusTrailer carries the final stream status: "ok" or the error text.
	StatusTrailer = "Metric-Stream-Status"

	// HashTrailer carries the HMAC-SHA256 of the body when a key is set.
	HashTrailer = "HashSHA256"
)

// Handler serves the metric stream, the token dictionary and a liveness
// check over HTTP.
type Handler struct {
	service *service.MetricService
	dict    *model.Dictionary
	key     string
	audit   *audit.Subject
}

// NewHandler returns HTTP handlers for svc. dict resolves tokens for
// TokensHandler; subject may be nil.
func NewHandler(svc *service.MetricService, dict *model.Dictionary, key string, subject *audit.Subject) *Handler {
	return &Handler{
		service: svc,
		dict:    dict,
		key:     key,
		audit:   subject,
	}
}

// StreamMetricsHandler streams the whole metric tree. The response status is
// always 200: failures are reported through StatusTrailer.
//
// A tree deeper than model.MaxDepth terminates the process, as it does on
// the gRPC transport; net/http would otherwise swallow the panic.
func (h *Handler) StreamMetricsHandler(w http.ResponseWriter, r *http.Request) {
	defer fatalOnPanic()

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Trailer", StatusTrailer+", "+HashTrailer)
	w.WriteHeader(http.StatusOK)

	sink := &responseSink{
		w:      w,
		rc:     http.NewResponseController(w),
		signer: hash.NewSigner(h.key),
	}
	stats, err := h.service.Get(sink)

	h.audit.NotifyAll(audit.NewStreamEvent("http", audit.GetClientIP(r), stats.Batches, stats.Entries, err))
}

// TokensHandler returns the token dictionary as JSON. With a key set, the body
// HMAC is sent in the HashSHA256 header.
func (h *Handler) TokensHandler(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(h.dict.Entries())
	if err != nil {
		log.Error().Err(err).Msg("failed to encode token dictionary")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if sig := hash.ComputeHash(body, h.key); sig != "" {
		w.Header().Set(HashTrailer, sig)
	}
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write token dictionary")
	}
}

// PingHandler reports liveness.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// fatalOnPanic exits the process on a panic raised while streaming.
// http.ErrAbortHandler is passed through to net/http.
func fatalOnPanic() {
	p := recover()
	if p == nil {
		return
	}
	if p == http.ErrAbortHandler {
		panic(p)
	}
	log.Fatal().
		Interface("panic", p).
		Bytes("stack", debug.Stack()).
		Msg("metric stream aborted")
}

// responseSink writes batches to an HTTP response as they are produced.
type responseSink struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	signer *hash.Signer
	prefix [binary.MaxVarintLen64]byte
}

func (s *responseSink) Write(b []byte) error {
	n := binary.PutUvarint(s.prefix[:], uint64(len(b)))
	if err := s.write(s.prefix[:n]); err != nil {
		return err
	}
	if err := s.write(b); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		log.Debug().Err(err).Msg("response does not support flushing")
	}
	return nil
}

func (s *responseSink) write(p []byte) error {
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	s.signer.Write(p)
	return nil
}

func (s *responseSink) Finish(status error) error {
	st := audit.StatusOK
	if status != nil {
		st = strings.ReplaceAll(status.Error(), "\n", " ")
	}
	s.w.Header().Set(StatusTrailer, st)
	s.w.Header().Set(HashTrailer, s.signer.Sum())
	return nil
}
