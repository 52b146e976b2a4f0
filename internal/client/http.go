// Package client fetches metric streams over HTTP.
package client

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/idudko/go-metric-stream/internal/codec"
	"github.com/idudko/go-metric-stream/internal/handler"
	"github.com/idudko/go-metric-stream/internal/model"
	"github.com/idudko/go-metric-stream/pkg/hash"
)

// maxBatchSize bounds a single received batch.
const maxBatchSize = 1 << 20

var (
	// ErrStreamFailed is returned when the server closed the stream with a
	// failing status.
	ErrStreamFailed = errors.New("metric stream failed")

	// ErrHashMismatch is returned when the body signature does not match.
	ErrHashMismatch = errors.New("metric stream signature mismatch")
)

// HTTPClient reads metric streams from the /metrics endpoint.
type HTTPClient struct {
	baseURL string
	key     string
	realIP  string
	client  *retryablehttp.Client
}

// NewHTTPClient returns a client for the server at address (host:port or a
// full URL). key enables signature checks; realIP is sent as X-Real-IP when
// not empty.
func NewHTTPClient(address, key, realIP string) *HTTPClient {
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	return &HTTPClient{
		baseURL: strings.TrimSuffix(address, "/"),
		key:     key,
		realIP:  realIP,
		client:  client,
	}
}

// Fetch streams the metric tree and passes every entry to fn in stream
// order. It returns the number of batches received.
//
// Only the request is retried; once the body starts, a failure ends Fetch.
func (c *HTTPClient) Fetch(ctx context.Context, fn func(codec.Entry) error) (int, error) {
	resp, err := c.get(ctx, "/metrics")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != handler.ContentType {
		return 0, fmt.Errorf("unexpected content type %q", ct)
	}

	signer := hash.NewSigner(c.key)
	br := bufio.NewReader(io.TeeReader(resp.Body, signer))

	batches := 0
	var buf []byte
	for {
		n, err := binary.ReadUvarint(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batches, fmt.Errorf("failed to read batch length: %w", err)
		}
		if n > maxBatchSize {
			return batches, fmt.Errorf("batch of %d bytes exceeds limit %d", n, maxBatchSize)
		}

		if uint64(cap(buf)) < n {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		if _, err := io.ReadFull(br, buf); err != nil {
			return batches, fmt.Errorf("failed to read batch: %w", err)
		}
		batches++

		if err := codec.Decode(buf, fn); err != nil {
			return batches, err
		}
	}

	// Trailers are only populated once the body has been read to EOF.
	if status := resp.Trailer.Get(handler.StatusTrailer); status != "ok" {
		return batches, fmt.Errorf("%w: %s", ErrStreamFailed, status)
	}
	if !signer.Verify(resp.Trailer.Get(handler.HashTrailer)) {
		return batches, ErrHashMismatch
	}

	log.Debug().Int("batches", batches).Msg("metric stream received")
	return batches, nil
}

// Tokens downloads the server's token dictionary and checks its signature
// when the client has a key.
func (c *HTTPClient) Tokens(ctx context.Context) (map[model.Token]string, error) {
	resp, err := c.get(ctx, "/tokens")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token dictionary: %w", err)
	}
	if !hash.ValidateHash(body, c.key, resp.Header.Get(handler.HashTrailer)) {
		return nil, fmt.Errorf("token dictionary: %w", ErrHashMismatch)
	}

	var entries []model.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode token dictionary: %w", err)
	}

	names := make(map[model.Token]string, len(entries))
	for _, e := range entries {
		names[e.Token] = e.Name
	}
	return names, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.realIP != "" {
		req.Header.Set("X-Real-IP", c.realIP)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp, nil
}

// FormatPath renders path with names, falling back to hex for unknown tokens.
func FormatPath(path []model.Token, names map[model.Token]string) string {
	parts := make([]string, len(path))
	for i, t := range path {
		if name, ok := names[t]; ok {
			parts[i] = name
		} else {
			parts[i] = fmt.Sprintf("0x%08x", uint32(t))
		}
	}
	return strings.Join(parts, "/")
}
