package pipeline

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tunewire/recognize"
	"tunewire/shazam"
)

// sineSource streams a fixed-length sine wave then reports exhaustion,
// standing in for a decoded file or a microphone during tests.
type sineSource struct {
	mu        sync.Mutex
	remaining int
	phase     float64
	sampleHz  float64
}

func newSineSource(seconds int, sampleHz float64) *sineSource {
	return &sineSource{remaining: int(float64(seconds) * sampleHz), sampleHz: sampleHz}
}

func (s *sineSource) Next(out []float32) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return 0, false
	}
	n := len(out)
	if n > s.remaining {
		n = s.remaining
	}
	for i := 0; i < n; i++ {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*1000*s.phase/s.sampleHz))
		s.phase++
	}
	s.remaining -= n
	return n, true
}

func (s *sineSource) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Handle(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func redirectingTestClient(t *testing.T, handler http.HandlerFunc) *recognize.Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := recognize.NewClient("UTC", time.Millisecond)
	c.SetHTTPClient(&http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			req.URL.Scheme = "http"
			req.URL.Host = server.Listener.Addr().String()
			return http.DefaultTransport.RoundTrip(req)
		}),
	})
	return c
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestOrchestratorSingleShotNoMatch(t *testing.T) {
	client := redirectingTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches": []}`))
	})
	source := newSineSource(5, 16000)
	sink := &recordingSink{}

	o := New(source, 16000, client, sink, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, o.Run(ctx))

	events := sink.snapshot()
	require.NotEmpty(t, events)
	_, startedOk := events[0].(CaptureStarted)
	require.True(t, startedOk, "first event must be CaptureStarted")

	foundNoMatch := false
	for _, e := range events {
		if _, ok := e.(NoMatch); ok {
			foundNoMatch = true
		}
	}
	require.True(t, foundNoMatch, "single-shot run against a never-matching server must report NoMatch")
}

func TestOrchestratorSingleShotMatch(t *testing.T) {
	client := redirectingTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches": [{"id": "1"}], "track": {"title": "T", "subtitle": "A"}}`))
	})
	source := newSineSource(5, 16000)
	sink := &recordingSink{}

	o := New(source, 16000, client, sink, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, o.Run(ctx))

	events := sink.snapshot()
	var matched *SongRecognized
	for _, e := range events {
		if sr, ok := e.(SongRecognized); ok {
			matched = &sr
		}
	}
	require.NotNil(t, matched, "single-shot run against an always-matching server must report SongRecognized")
	require.Equal(t, "T", matched.Result.Title)
}

func TestOrchestratorStopsOnContextCancel(t *testing.T) {
	client := redirectingTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"matches": []}`))
	})
	// A source that never exhausts forces the run to depend entirely on
	// context cancellation to terminate.
	source := newSineSource(3600, 16000)
	sink := &recordingSink{}

	o := New(source, 16000, client, sink, true)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestSendCoalescedKeepsOnlyNewest(t *testing.T) {
	ch := make(chan shazam.Signature, sigChannelCapacity)
	ctx := context.Background()

	sendCoalesced(ctx, ch, shazam.Signature{NumSamples: 1})
	sendCoalesced(ctx, ch, shazam.Signature{NumSamples: 2})
	sendCoalesced(ctx, ch, shazam.Signature{NumSamples: 3})

	sig := <-ch
	require.Equal(t, uint32(3), sig.NumSamples)

	select {
	case <-ch:
		t.Fatal("channel should hold nothing past the one coalesced signature")
	default:
	}
}

func TestDrainNewestSkipsStaleQueuedSignatures(t *testing.T) {
	ch := make(chan shazam.Signature, 4)
	ch <- shazam.Signature{NumSamples: 10}
	ch <- shazam.Signature{NumSamples: 20}

	sig, ok := drainNewest(ch, shazam.Signature{NumSamples: 1})
	require.True(t, ok)
	require.Equal(t, uint32(20), sig.NumSamples)
}

func TestDrainNewestReportsClosedChannel(t *testing.T) {
	ch := make(chan shazam.Signature)
	close(ch)

	_, ok := drainNewest(ch, shazam.Signature{NumSamples: 1})
	require.False(t, ok)
}
