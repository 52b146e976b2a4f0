package audit

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// StatusOK is the Status of an event for a stream that finished cleanly.
const StatusOK = "ok"

// StreamEvent describes one finished metric stream.
type StreamEvent struct {
	Timestamp int64  `json:"ts"`
	Transport string `json:"transport"`
	Batches   int    `json:"batches"`
	Entries   int    `json:"entries"`
	Status    string `json:"status"`
	IPAddress string `json:"ip_address"`
}

// NewStreamEvent builds the event for a stream that sent batches and entries
// and finished with status.
func NewStreamEvent(transport, ip string, batches, entries int, status error) StreamEvent {
	s := StatusOK
	if status != nil {
		s = status.Error()
	}
	return StreamEvent{
		Timestamp: time.Now().Unix(),
		Transport: transport,
		Batches:   batches,
		Entries:   entries,
		Status:    s,
		IPAddress: ip,
	}
}

// Observer receives one event per finished metric stream.
type Observer interface {
	Notify(event StreamEvent)
}

// FileObserver appends events to a file, one JSON document per line.
type FileObserver struct {
	mu       sync.Mutex
	filePath string
}

func NewFileObserver(filePath string) *FileObserver {
	return &FileObserver{
		filePath: filePath,
	}
}

func (o *FileObserver) Notify(event StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal audit event")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	file, err := os.OpenFile(o.filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		log.Error().Err(err).Str("path", o.filePath).Msg("failed to open audit file")
		return
	}
	defer file.Close()

	if _, err := fmt.Fprintln(file, string(data)); err != nil {
		log.Error().Err(err).Str("path", o.filePath).Msg("failed to write audit event")
	}
}

// HTTPObserver posts events to a URL, retrying transient failures.
type HTTPObserver struct {
	url    string
	client *retryablehttp.Client
}

func NewHTTPObserver(url string) *HTTPObserver {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 10 * time.Millisecond
	client.RetryWaitMax = 100 * time.Millisecond
	client.Logger = nil

	return &HTTPObserver{
		url:    url,
		client: client,
	}
}

func (o *HTTPObserver) Notify(event StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal audit event")
		return
	}

	resp, err := o.client.Post(o.url, "application/json", bytes.NewReader(data))
	if err != nil {
		log.Error().Err(err).Str("url", o.url).Msg("failed to send audit event")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("url", o.url).Msg("audit server returned non-OK status")
	}
}

// Subject fans events out to its observers. It is safe for concurrent use.
type Subject struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewSubject() *Subject {
	return &Subject{
		observers: make([]Observer, 0),
	}
}

func (s *Subject) Attach(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// NotifyAll delivers event to every observer. A nil Subject drops events.
func (s *Subject) NotifyAll(event StreamEvent) {
	if s == nil {
		return
	}
	s.mu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()

	for _, observer := range observers {
		observer.Notify(event)
	}
}

// GetClientIP returns the originating client address of r.
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
