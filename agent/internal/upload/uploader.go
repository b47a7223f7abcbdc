package upload

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/trackrelay/trackrelay/agent/internal/config"
	"github.com/trackrelay/trackrelay/pkg/wire"
)

// maxErrorBody caps how much of a rejection body is kept for logging.
const maxErrorBody = 512

// State is the Uploader's position in its state machine.
type State int

const (
	StateIdle State = iota
	StateSending
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateCancelling:
		return "cancelling"
	}
	return "unknown"
}

// Uploader posts batches to the collection endpoint, one at a time.
type Uploader struct {
	url      string
	secret   func() string
	compress bool
	client   *http.Client // injectable for tests

	// gate serializes Begin so that cancel-and-wait of the previous attempt
	// and registration of the next one happen as a unit.
	gate sync.Mutex

	mu      sync.Mutex
	state   State
	current *Attempt
}

// New builds an Uploader from the agent config.
func New(cfg config.AgentConfig) (*Uploader, error) {
	client, err := buildHTTPClient(cfg.TLS, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("upload: build http client: %w", err)
	}
	return &Uploader{
		url:      strings.TrimSuffix(cfg.Endpoint, "/") + wire.Path,
		secret:   cfg.Secret,
		compress: cfg.Compression == "gzip",
		client:   client,
	}, nil
}

// State returns the current state.
func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Attempt is a claim on the Uploader's single delivery slot.
// The holder must call Release exactly once when done with the outcome.
type Attempt struct {
	u      *Uploader
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Begin claims the delivery slot. If another attempt holds it, that attempt
// is cancelled and Begin waits until it has been released. The returned
// attempt is cancelled when ctx is, or when a later Begin supersedes it.
//
// A caller whose ctx is already done gets ctx.Err() and the holder is left
// alone.
func (u *Uploader) Begin(ctx context.Context) (*Attempt, error) {
	a, _, err := u.begin(ctx, false)
	return a, err
}

// BeginIfIdle claims the slot only when no other attempt holds it. It
// reports false, without disturbing the holder, when the slot is taken.
func (u *Uploader) BeginIfIdle(ctx context.Context) (*Attempt, bool, error) {
	return u.begin(ctx, true)
}

func (u *Uploader) begin(ctx context.Context, onlyIfIdle bool) (*Attempt, bool, error) {
	u.gate.Lock()
	defer u.gate.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	u.mu.Lock()
	prev := u.current
	if prev != nil && onlyIfIdle {
		u.mu.Unlock()
		return nil, false, nil
	}
	if prev != nil {
		u.state = StateCancelling
	}
	u.mu.Unlock()

	if prev != nil {
		slog.Debug("upload: superseding in-flight attempt")
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	actx, cancel := context.WithCancel(ctx)
	a := &Attempt{
		u:      u,
		ctx:    actx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	u.mu.Lock()
	u.current = a
	u.state = StateIdle
	u.mu.Unlock()
	return a, true, nil
}

// Context is cancelled when the attempt is superseded.
func (a *Attempt) Context() context.Context { return a.ctx }

// Send posts body, which encodes count samples. A 201 response yields
// Delivered(count); the protocol has no partial acceptance.
func (a *Attempt) Send(body []byte, count int) Outcome {
	start := time.Now()
	if a.ctx.Err() != nil {
		return superseded(0)
	}

	a.u.setState(a, StateSending)
	defer a.u.setState(a, StateIdle)

	req, err := a.u.newRequest(a.ctx, body)
	if err != nil {
		return failed(&TransportError{Err: err}, time.Since(start))
	}

	resp, err := a.u.client.Do(req)
	if err != nil {
		if a.ctx.Err() != nil {
			return superseded(time.Since(start))
		}
		return failed(&TransportError{Err: err}, time.Since(start))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return delivered(count, time.Since(start))
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return failed(&RejectedError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}, time.Since(start))
}

// Release frees the delivery slot. It is safe to call more than once.
func (a *Attempt) Release() {
	a.once.Do(func() {
		a.u.mu.Lock()
		if a.u.current == a {
			a.u.current = nil
			a.u.state = StateIdle
		}
		a.u.mu.Unlock()
		a.cancel()
		close(a.done)
	})
}

// setState records s only while a still owns the slot, so a superseded
// attempt cannot overwrite the state of its successor.
func (u *Uploader) setState(a *Attempt, s State) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current == a && u.state != StateCancelling {
		u.state = s
	}
}

func (u *Uploader) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	payload := body
	if u.compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		payload = buf.Bytes()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.secret())
	if u.compress {
		req.Header.Set("Content-Encoding", "gzip")
	}
	return req, nil
}

// buildHTTPClient constructs an http.Client for the endpoint's TLS settings.
// timeout bounds the whole exchange, including reading the response.
func buildHTTPClient(cfg config.TLSConfig, timeout time.Duration) (*http.Client, error) {
	tlsCfg, err := TLSClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// TLSClientConfig builds the client TLS settings for the collection endpoint.
func TLSClientConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if cfg.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}
