// Package pipeline wires the Capture/Processor/Recognizer stages
// together: a bounded, lossy-at-head channel carries raw samples from
// Capture to the Processor, a bounded, coalescing channel carries
// rolling signature snapshots from the Processor to the Recognizer, and
// every outcome reaches the caller through an EventSink.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"tunewire/apperr"
	"tunewire/recognize"
	"tunewire/shazam"
)

const (
	channelCapacity    = 4
	sigChannelCapacity = 1
	captureChunkSize   = 4096
	snapshotInterval   = time.Second
	cooldown           = 8 * time.Second
	backoffInitial     = 3 * time.Second
	backoffMax         = 15 * time.Second
)

// AudioSource is the capability set Capture needs from whatever produces
// samples: a microphone, a decoded file, or a test fixture. Samples must
// already be mono f32 at the accumulator's sample rate; anything else is
// resampled upstream of this interface.
type AudioSource interface {
	Next(out []float32) (int, bool)
	Close() error
}

// Orchestrator runs the three-stage pipeline once per Run call.
type Orchestrator struct {
	source     AudioSource
	sampleRate uint32
	client     *recognize.Client
	sink       EventSink
	continuous bool
}

// New builds an Orchestrator. continuous selects between single-shot
// (stop after the first Match or NoMatch) and continuous (keep listening
// until ctx is cancelled or the source is exhausted) lifecycles.
func New(source AudioSource, sampleRate uint32, client *recognize.Client, sink EventSink, continuous bool) *Orchestrator {
	return &Orchestrator{
		source:     source,
		sampleRate: sampleRate,
		client:     client,
		sink:       sink,
		continuous: continuous,
	}
}

// Run drives the pipeline until ctx is cancelled, the source is
// exhausted, or (in single-shot mode) the first recognition outcome is
// reached. It always returns nil: every failure is reported through the
// EventSink rather than returned, so a single bad attempt never takes
// down a long-running listen session.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rawCh := make(chan []float32, channelCapacity)
	sigCh := make(chan shazam.Signature, sigChannelCapacity)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.capture(ctx, rawCh)
	}()
	go func() {
		defer wg.Done()
		o.process(ctx, rawCh, sigCh)
	}()

	o.runRecognizer(ctx, sigCh)

	cancel()
	wg.Wait()
	return nil
}

// capture reads fixed-size chunks from source and forwards them to out,
// dropping the oldest buffered chunk when out is full rather than
// blocking: a slow Processor must never stall Capture.
func (o *Orchestrator) capture(ctx context.Context, out chan<- []float32) {
	defer close(out)
	o.sink.Handle(CaptureStarted{})

	buf := make([]float32, captureChunkSize)
	for {
		select {
		case <-ctx.Done():
			o.sink.Handle(CaptureStopped{})
			return
		default:
		}

		n, ok := o.source.Next(buf)
		if n > 0 {
			chunk := make([]float32, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- chunk:
				default:
				}
			}
		}
		if !ok {
			o.sink.Handle(CaptureStopped{})
			return
		}
	}
}

// process accumulates raw samples into a running signature and emits a
// rolling snapshot roughly every snapshotInterval, coalescing into out so
// the Recognizer only ever sees the newest snapshot: backlog never grows,
// it collapses.
func (o *Orchestrator) process(ctx context.Context, in <-chan []float32, out chan<- shazam.Signature) {
	defer close(out)
	acc := shazam.NewAccumulator(o.sampleRate)
	samplesPerSnapshot := o.sampleRate * uint32(snapshotInterval/time.Second)
	var samplesSeen uint32

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-in:
			if !ok {
				sendCoalesced(ctx, out, acc.Snapshot())
				return
			}
			acc.Write(chunk)
			samplesSeen += uint32(len(chunk))
			if samplesSeen >= samplesPerSnapshot {
				samplesSeen = 0
				sendCoalesced(ctx, out, acc.Snapshot())
			}
		}
	}
}

// sendCoalesced pushes sig onto out, discarding whatever stale snapshot(s)
// are already buffered first so out never holds more than the newest one.
func sendCoalesced(ctx context.Context, out chan<- shazam.Signature, sig shazam.Signature) {
	for {
		select {
		case out <- sig:
			return
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-out:
		case <-ctx.Done():
			return
		default:
		}
	}
}

// drainNewest returns the most recently queued signature on in, discarding
// any older ones buffered ahead of it, so a Recognizer that fell behind
// never calls Identify against stale audio.
func drainNewest(in <-chan shazam.Signature, sig shazam.Signature) (shazam.Signature, bool) {
	for {
		select {
		case newer, ok := <-in:
			if !ok {
				return sig, false
			}
			sig = newer
		default:
			return sig, true
		}
	}
}

// runRecognizer drains sigCh, calling Identify on the newest queued
// snapshot and reporting the outcome. It honors a post-match cooldown (so
// a sustained match doesn't re-fire every snapshot) and exponential
// backoff keyed on the signature's fingerprint: a run of NoMatch against
// the same unchanged audio backs off same as a run of retryable failures
// would, but a fingerprint change (new audio) always resets it to
// backoffInitial. A match or a non-retryable failure also resets it.
func (o *Orchestrator) runRecognizer(ctx context.Context, in <-chan shazam.Signature) {
	backoff := backoffInitial
	var cooldownUntil time.Time
	var lastFingerprint [32]byte
	haveLastFingerprint := false

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-in:
			if !ok {
				return
			}
			sig, ok = drainNewest(in, sig)
			if time.Now().Before(cooldownUntil) {
				if !ok {
					return
				}
				continue
			}

			fingerprint := sig.Fingerprint()
			changed := !haveLastFingerprint || fingerprint != lastFingerprint
			lastFingerprint = fingerprint
			haveLastFingerprint = true

			result, err := o.client.Identify(ctx, sig)
			if err != nil {
				o.sink.Handle(PipelineError{Err: err})
				var appErr *apperr.Error
				if errors.As(err, &appErr) && appErr.Retryable {
					if changed {
						backoff = backoffInitial
					}
					if !sleep(ctx, backoff) {
						return
					}
					backoff = min(backoff*2, backoffMax)
				} else {
					backoff = backoffInitial
				}
				if !o.continuous || !ok {
					return
				}
				continue
			}

			if result.Found {
				backoff = backoffInitial
				o.sink.Handle(SongRecognized{Result: result, At: time.Now()})
				cooldownUntil = time.Now().Add(cooldown)
				if !o.continuous || !ok {
					return
				}
				continue
			}

			o.sink.Handle(NoMatch{At: time.Now()})
			if changed {
				backoff = backoffInitial
			} else {
				backoff = min(backoff*2, backoffMax)
			}
			if !o.continuous || !ok {
				return
			}
			waitFor := result.RetryAfter
			if waitFor < backoff {
				waitFor = backoff
			}
			if waitFor > 0 {
				if !sleep(ctx, waitFor) {
					return
				}
			}
		}
	}
}

// sleep waits for d or ctx cancellation, reporting which happened first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
