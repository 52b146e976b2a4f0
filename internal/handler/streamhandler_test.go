package handler

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/idudko/go-metric-stream/internal/audit"
	"github.com/idudko/go-metric-stream/internal/codec"
	"github.com/idudko/go-metric-stream/internal/model"
	"github.com/idudko/go-metric-stream/internal/service"
	"github.com/idudko/go-metric-stream/pkg/hash"
)

func testTree(dict *model.Dictionary, n int) *model.Tree {
	tree := &model.Tree{}
	g := model.NewGroup(dict.Register("group"))
	for i := range n {
		g.AddMetric(model.NewInt(dict.Register(fmt.Sprintf("metric%d", i)), int64(i)))
	}
	tree.Groups = append(tree.Groups, g)
	return tree
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", h.StreamMetricsHandler)
	r.Get("/tokens", h.TokensHandler)
	r.Get("/ping", h.PingHandler)
	return r
}

func readFrames(t *testing.T, body []byte) [][]byte {
	t.Helper()
	var frames [][]byte
	br := bufio.NewReader(bytes.NewReader(body))
	for {
		n, err := binary.ReadUvarint(br)
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("ReadUvarint: %v", err)
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(br, frame); err != nil {
			t.Fatalf("ReadFull: %v", err)
		}
		frames = append(frames, frame)
	}
}

func TestStreamMetricsHandler(t *testing.T) {
	dict := model.NewDictionary()
	svc := service.NewMetricService(testTree(dict, 5))
	h := NewHandler(svc, dict, "secret", nil)

	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != ContentType {
		t.Errorf("expected content type %s, got %s", ContentType, ct)
	}

	body := w.Body.Bytes()
	frames := readFrames(t, body)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	total := 0
	for _, f := range frames {
		entries, err := codec.DecodeBatch(f)
		if err != nil {
			t.Fatalf("DecodeBatch: %v", err)
		}
		total += len(entries)
	}
	if total != 5 {
		t.Errorf("expected 5 entries, got %d", total)
	}

	if got := res.Trailer.Get(StatusTrailer); got != "ok" {
		t.Errorf("expected status trailer ok, got %q", got)
	}
	if got := res.Trailer.Get(HashTrailer); !hash.ValidateHash(body, "secret", got) {
		t.Errorf("hash trailer %q does not match body", got)
	}
}

func TestStreamMetricsHandler_Failure(t *testing.T) {
	dict := model.NewDictionary()
	tree := &model.Tree{Metrics: []*model.Metric{{Name: dict.Register("broken")}}}

	rec := &eventRecorder{}
	subject := audit.NewSubject()
	subject.Attach(rec)
	h := NewHandler(service.NewMetricService(tree), dict, "", subject)

	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	res := w.Result()
	if got := res.Trailer.Get(StatusTrailer); got == "ok" || got == "" {
		t.Errorf("expected failing status trailer, got %q", got)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected empty body, got %d bytes", w.Body.Len())
	}
	if len(rec.events) != 1 || rec.events[0].Status == audit.StatusOK || rec.events[0].Transport != "http" {
		t.Errorf("unexpected audit events %+v", rec.events)
	}
}

// deepTree nests one metric a level below what model.Path can hold.
func deepTree(dict *model.Dictionary) *model.Tree {
	root := model.NewGroup(dict.Register("level0"))
	g := root
	for i := 1; i < model.MaxDepth; i++ {
		g = g.AddGroup(model.NewGroup(dict.Register(fmt.Sprintf("level%d", i))))
	}
	g.AddMetric(model.NewInt(dict.Register("leaf"), 1))
	return &model.Tree{Groups: []*model.Group{root}}
}

const overflowChildEnv = "METRIC_STREAM_OVERFLOW_CHILD"

func TestStreamMetricsHandler_DepthOverflowExits(t *testing.T) {
	if os.Getenv(overflowChildEnv) == "1" {
		dict := model.NewDictionary()
		h := NewHandler(service.NewMetricService(deepTree(dict)), dict, "", nil)
		srv := httptest.NewServer(newRouter(h))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/metrics")
		if err == nil {
			resp.Body.Close()
		}
		// Reaching this point means the process survived the overflow.
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestStreamMetricsHandler_DepthOverflowExits$")
	cmd.Env = append(os.Environ(), overflowChildEnv+"=1")
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected the server process to exit with an error, got %v\n%s", err, out)
	}
	if exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code\n%s", out)
	}
	if !bytes.Contains(out, []byte("metric stream aborted")) {
		t.Errorf("expected fatal log line in output:\n%s", out)
	}
}

type eventRecorder struct {
	events []audit.StreamEvent
}

func (r *eventRecorder) Notify(e audit.StreamEvent) { r.events = append(r.events, e) }

func TestTokensHandler(t *testing.T) {
	dict := model.NewDictionary()
	dict.Register("b")
	dict.Register("a")
	h := NewHandler(service.NewMetricService(&model.Tree{}), dict, "", nil)

	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tokens", nil))

	var entries []model.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a" || entries[0].Token != model.TokenOf("a") {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestTokensHandler_Signed(t *testing.T) {
	dict := model.NewDictionary()
	dict.Register("uptime")
	h := NewHandler(service.NewMetricService(&model.Tree{}), dict, "secret", nil)

	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tokens", nil))

	sig := w.Header().Get(HashTrailer)
	if sig == "" {
		t.Fatal("expected signature header")
	}
	if !hash.ValidateHash(w.Body.Bytes(), "secret", sig) {
		t.Errorf("signature %q does not match body", sig)
	}
}

func TestPingHandler(t *testing.T) {
	h := NewHandler(service.NewMetricService(&model.Tree{}), model.NewDictionary(), "", nil)
	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected status code 200, got %d", w.Code)
	}
}
