package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/trackrelay/trackrelay/agent/internal/config"
	"github.com/trackrelay/trackrelay/pkg/wire"
)

func agentCfg(endpoint string) config.AgentConfig {
	return config.AgentConfig{
		Endpoint:       endpoint,
		SecretEnv:      "TEST_UPLOAD_SECRET",
		RequestTimeout: 2 * time.Second,
		Compression:    "none",
	}
}

func newUploader(t *testing.T, srv *httptest.Server, mutate ...func(*config.AgentConfig)) *Uploader {
	t.Helper()
	cfg := agentCfg(srv.URL)
	for _, m := range mutate {
		m(&cfg)
	}
	u, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return u
}

func body(t *testing.T, n int) []byte {
	t.Helper()
	samples := make([]wire.Sample, n)
	for i := range samples {
		samples[i] = wire.Sample{Latitude: 60, Longitude: 24, Timestamp: 1700000000 + float64(i)}
	}
	b, err := wire.Encode(samples, "dev-1", 80)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return b
}

func send(t *testing.T, u *Uploader, b []byte, n int) Outcome {
	t.Helper()
	a, err := u.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer a.Release()
	return a.Send(b, n)
}

func TestSend_DeliveredOn201(t *testing.T) {
	t.Setenv("TEST_UPLOAD_SECRET", "hunter2")

	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := newUploader(t, srv)
	b := body(t, 3)
	out := send(t, u, b, 3)

	if out.Kind != Delivered || out.Count != 3 || out.Err != nil {
		t.Fatalf("outcome = %+v, want Delivered(3)", out)
	}
	if got.Method != http.MethodPost || got.URL.Path != "/locations" {
		t.Errorf("request = %s %s, want POST /locations", got.Method, got.URL.Path)
	}
	for header, want := range map[string]string{
		"Content-Type":  "application/json",
		"Accept":        "application/json",
		"Authorization": "Bearer hunter2",
	} {
		if v := got.Header.Get(header); v != want {
			t.Errorf("%s = %q, want %q", header, v, want)
		}
	}
	if string(gotBody) != string(b) {
		t.Errorf("body = %s, want %s", gotBody, b)
	}
	if u.State() != StateIdle {
		t.Errorf("State() = %v, want idle", u.State())
	}
}

func TestSend_NonCreatedIsRejected(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusAccepted, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte("nope"))
		}))

		out := send(t, newUploader(t, srv), body(t, 1), 1)
		srv.Close()

		if out.Kind != Failed {
			t.Errorf("status %d: kind = %v, want failed", code, out.Kind)
			continue
		}
		var rej *RejectedError
		if !errors.As(out.Err, &rej) {
			t.Errorf("status %d: err = %v, want *RejectedError", code, out.Err)
			continue
		}
		if rej.StatusCode != code || rej.Body != "nope" {
			t.Errorf("status %d: got %+v", code, rej)
		}
		if out.Count != 0 {
			t.Errorf("status %d: Count = %d, want 0", code, out.Count)
		}
	}
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := newUploader(t, srv)
	srv.Close() // nothing listens any more

	out := send(t, u, body(t, 1), 1)
	var te *TransportError
	if out.Kind != Failed || !errors.As(out.Err, &te) {
		t.Fatalf("outcome = %+v, want Failed(*TransportError)", out)
	}
}

func TestSend_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	defer close(release)

	u := newUploader(t, srv, func(c *config.AgentConfig) { c.RequestTimeout = 50 * time.Millisecond })
	out := send(t, u, body(t, 1), 1)

	var te *TransportError
	if out.Kind != Failed || !errors.As(out.Err, &te) {
		t.Fatalf("outcome = %+v, want Failed(*TransportError)", out)
	}
}

func TestSend_Gzip(t *testing.T) {
	var encoding string
	var decoded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding = r.Header.Get("Content-Encoding")
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		decoded, _ = io.ReadAll(zr)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := newUploader(t, srv, func(c *config.AgentConfig) { c.Compression = "gzip" })
	b := body(t, 5)
	out := send(t, u, b, 5)

	if out.Kind != Delivered {
		t.Fatalf("outcome = %+v, want delivered", out)
	}
	if encoding != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", encoding)
	}
	if string(decoded) != string(b) {
		t.Errorf("decompressed body = %s, want %s", decoded, b)
	}
}

func TestBegin_SupersedesInFlight(t *testing.T) {
	var calls atomic.Int32
	arrived := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Disconnect detection only starts once the body is consumed.
			io.Copy(io.Discard, r.Body) //nolint:errcheck
			arrived <- struct{}{}
			<-r.Context().Done() // hang until the client gives up
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := newUploader(t, srv)

	first, err := u.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	firstBody := body(t, 2)
	firstOut := make(chan Outcome, 1)
	go func() {
		out := first.Send(firstBody, 2)
		firstOut <- out
		first.Release()
	}()

	<-arrived
	if s := u.State(); s != StateSending {
		t.Errorf("State() while first in flight = %v, want sending", s)
	}

	second, err := u.Begin(context.Background())
	if err != nil {
		t.Fatalf("second Begin() error = %v", err)
	}

	// Begin returns only after the first attempt was released.
	select {
	case out := <-firstOut:
		if out.Kind != Superseded || !errors.Is(out.Err, ErrSuperseded) {
			t.Errorf("first outcome = %+v, want superseded", out)
		}
	default:
		t.Fatal("second Begin returned before the first attempt resolved")
	}

	out := second.Send(body(t, 2), 2)
	second.Release()
	if out.Kind != Delivered || out.Count != 2 {
		t.Errorf("second outcome = %+v, want Delivered(2)", out)
	}
	if u.State() != StateIdle {
		t.Errorf("State() = %v, want idle", u.State())
	}
}

func TestSend_AfterSupersededReturnsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request should be issued by a superseded attempt")
	}))
	defer srv.Close()

	u := newUploader(t, srv)
	b1 := body(t, 1)
	a, _ := u.Begin(context.Background())
	done := make(chan struct{})
	go func() {
		b, _ := u.Begin(context.Background())
		b.Release()
		close(done)
	}()

	// Wait for the second Begin to cancel a.
	<-a.Context().Done()
	out := a.Send(b1, 1)
	a.Release()
	<-done

	if out.Kind != Superseded {
		t.Errorf("outcome = %+v, want superseded", out)
	}
}

func TestBegin_ContextCancelledWhileWaiting(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	u := newUploader(t, srv)

	held, _ := u.Begin(context.Background()) // never released during the wait
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := u.Begin(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Begin() error = %v, want deadline exceeded", err)
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)
	b.jitter = func() float64 { return 0.5 } // zero jitter

	want := []time.Duration{1, 2, 4, 8, 8, 8}
	for i, w := range want {
		if got := b.Next(); got != w*time.Second {
			t.Errorf("Next()[%d] = %v, want %v", i, got, w*time.Second)
		}
	}
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after Reset = %v, want 1s", got)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)
	for i := 0; i < 50; i++ {
		base := b.current
		d := b.Next()
		if d < base*3/4 || d > base*5/4 {
			t.Errorf("Next()[%d] = %v, outside ±25%% of %v", i, d, base)
		}
	}
}

func TestBegin_CancelledCallerLeavesHolderAlone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body) //nolint:errcheck
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := newUploader(t, srv)
	holder, err := u.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	holderBody := body(t, 3)
	holderOut := make(chan Outcome, 1)
	go func() {
		out := holder.Send(holderBody, 3)
		holder.Release()
		holderOut <- out
	}()

	time.Sleep(50 * time.Millisecond)
	gone, cancel := context.WithCancel(context.Background())
	cancel()
	if a, err := u.Begin(gone); err == nil || a != nil {
		t.Fatalf("Begin(cancelled) = %v, %v; want context error", a, err)
	}

	select {
	case out := <-holderOut:
		if out.Kind != Delivered || out.Count != 3 {
			t.Errorf("holder outcome = %+v, want delivered(3)", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("holder never finished")
	}
}

func TestBeginIfIdle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := newUploader(t, srv)
	holder, err := u.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	a, ok, err := u.BeginIfIdle(context.Background())
	if err != nil || ok || a != nil {
		t.Fatalf("BeginIfIdle while held = %v, %v, %v; want nil, false, nil", a, ok, err)
	}
	if holder.Context().Err() != nil {
		t.Fatal("BeginIfIdle cancelled the holder")
	}
	if out := holder.Send(body(t, 1), 1); out.Kind != Delivered {
		t.Errorf("holder outcome = %+v, want delivered", out)
	}
	holder.Release()

	a, ok, err = u.BeginIfIdle(context.Background())
	if err != nil || !ok || a == nil {
		t.Fatalf("BeginIfIdle when idle = %v, %v, %v", a, ok, err)
	}
	a.Release()
}
