package shazam

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"tunewire/apperr"
)

// historyDepth is the size of the circular per-pass magnitude history.
// detectPeaks' timeDomainNeighbors offsets (up to +249) wrap around a ring
// of exactly this size to reach back into the past (at most 91 passes).
const historyDepth = 256

// peakLookback is how many passes behind the newest the peak-detection
// window sits, chosen so the time-domain spreading in spreadPeaks has
// fully settled by the time a candidate bin is evaluated.
const peakLookback = 46
const spreadLookback = 49

// rollingWindowSeconds bounds how much audio an Accumulator keeps peaks
// for; older peaks are forgotten so a long-running Accumulator (as used by
// the pipeline's Processor) reflects only recent audio.
const rollingWindowSeconds = 12

// freqDomainNeighbors and timeDomainNeighbors are the exact neighbor
// offsets a candidate peak is checked against: eight frequency-bin offsets
// into the once-spread magnitude history, and fourteen pass offsets into
// the time-spread history. These reproduce Shazam's own peak selection
// bit-for-bit, rather than a simpler, more obvious 9x3 neighborhood.
var freqDomainNeighbors = [8]int{-10, -7, -4, -3, 1, 2, 5, 8}
var timeDomainNeighbors = [14]int{-53, -45, 165, 172, 179, 186, 193, 200, 214, 221, 228, 235, 242, 249}

// Accumulator owns the ring buffer and FFT stage, advances one FFT pass
// per stride of new samples, and accumulates FrequencyPeaks into four
// bands. All mutable DSP
// state here is owned by a single goroutine (the pipeline's Processor);
// Accumulator itself does no locking.
type Accumulator struct {
	sampleRate uint32
	numSamples uint32
	passesDone int

	ring    sampleRing
	fft     *fourier.FFT
	outputs [historyDepth][fftBins]float64
	spread  [historyDepth][fftBins]float64
	index   int

	pending []float64
	peaks   [numBands][]FrequencyPeak
}

// NewAccumulator returns an empty Accumulator for a 16kHz mono stream.
// sampleRateHz must be 16000; it is threaded through rather than hardcoded
// so Signature/FrequencyPeak can always report the rate they were computed
// at.
func NewAccumulator(sampleRateHz uint32) *Accumulator {
	return &Accumulator{
		sampleRate: sampleRateHz,
		fft:        fourier.NewFFT(windowSize),
	}
}

// Write feeds newly captured mono f32 samples into the accumulator,
// advancing one FFT pass per stride's worth of buffered input. Samples
// left over (fewer than a full stride) are buffered until the next call.
func (a *Accumulator) Write(samples []float32) {
	a.numSamples += uint32(len(samples))
	for _, s := range samples {
		a.pending = append(a.pending, float64(s))
	}
	for len(a.pending) >= stride {
		var chunk [stride]float64
		copy(chunk[:], a.pending[:stride])
		a.pending = a.pending[stride:]
		a.step(chunk)
	}
	if len(a.pending) == 0 {
		a.pending = nil
	} else {
		a.pending = append([]float64(nil), a.pending...)
	}
	a.prune()
}

func (a *Accumulator) step(chunk [stride]float64) {
	a.doFFT(chunk)
	a.spreadPeaks()
	a.passesDone++
	if a.passesDone >= peakLookback {
		a.detectPeaks()
	}
}

// doFFT scales the incoming stride to the reference decoder's integer-ish
// range, folds it into the ring buffer, and records the window's power
// spectrum (squared magnitude scaled by 2^-17, floored at 1e-10) into the
// history. The log is taken later, in recordPeak.
func (a *Accumulator) doFFT(chunk [stride]float64) {
	var scaled [stride]float64
	for i, v := range chunk {
		scaled[i] = math.Round(v * 65536)
	}
	a.ring.push(scaled)
	windowed := a.ring.window()

	coeffs := a.fft.Coefficients(nil, windowed[:])
	cur := &a.outputs[a.index]
	for i, c := range coeffs {
		re, im := real(c), imag(c)
		cur[i] = math.Max((re*re+im*im)/(1<<17), 1.0/1e10)
	}
	a.index = (a.index + 1) % historyDepth
}

// spreadPeaks performs the frequency-domain and time-domain spreading of
// peak values the reference decoder relies on so a true peak survives
// comparison against its (softened) neighborhood.
func (a *Accumulator) spreadPeaks() {
	cur := a.outputs[(a.index-1+historyDepth)%historyDepth]
	for i := 0; i < fftBins-2; i++ {
		cur[i] = max3(cur[i], cur[i+1], cur[i+2])
	}
	for i := 0; i < fftBins; i++ {
		maxValue := cur[i]
		for _, j := range [3]int{1, 3, 6} {
			former := &a.spread[(a.index-1-j+2*historyDepth)%historyDepth]
			maxValue = math.Max(former[i], maxValue)
			former[i] = maxValue
		}
	}
	a.spread[(a.index-1+historyDepth)%historyDepth] = cur
}

// detectPeaks looks peakLookback passes behind the newest FFT output for
// local maxima and records each as a FrequencyPeak.
func (a *Accumulator) detectPeaks() {
	magnitudes := &a.outputs[(a.index-peakLookback+2*historyDepth)%historyDepth]
	spread := &a.spread[(a.index-spreadLookback+2*historyDepth)%historyDepth]

	for bin := 10; bin < 1015; bin++ {
		if magnitudes[bin] < 1.0/64.0 || magnitudes[bin] < spread[bin-1] {
			continue
		}
		neighborMax := 0.0
		for _, off := range freqDomainNeighbors {
			neighborMax = math.Max(neighborMax, spread[bin+off])
		}
		if magnitudes[bin] <= neighborMax {
			continue
		}
		otherMax := neighborMax
		for _, off := range timeDomainNeighbors {
			// off is relative to the current index, not to spread's -49
			// lag; several offsets are positive and rely on wrapping
			// around the historyDepth-sized ring to reach further into
			// the past (e.g. +165 mod 256 == -91).
			other := &a.spread[(a.index+off+4*historyDepth)%historyDepth]
			otherMax = math.Max(otherMax, other[bin-1])
		}
		if magnitudes[bin] <= otherMax {
			continue
		}
		a.recordPeak(bin, magnitudes)
	}
}

func (a *Accumulator) recordPeak(bin int, magnitudes *[fftBins]float64) {
	magAt := func(i int) float64 {
		return math.Log(math.Max(magnitudes[i], 1.0/64.0))*1477.3 + 6144.0
	}
	mag, before, after := magAt(bin), magAt(bin-1), magAt(bin+1)

	variation1 := mag*2.0 - before - after
	if variation1 <= 0 {
		// Not a genuine local maximum once log-compressed; the reference
		// decoder panics here, but a single ambiguous bin must never take
		// the pipeline down with it.
		return
	}
	variation2 := (after - before) * 32.0 / variation1

	correctedBin := int(float64(bin*64) + variation2)
	hz := float64(correctedBin) * (float64(a.sampleRate) / 2.0 / 1024.0 / 64.0)
	band, ok := bandForHz(hz)
	if !ok {
		return
	}

	passNumber := a.passesDone - peakLookback
	a.peaks[band] = append(a.peaks[band], FrequencyPeak{
		FFTPassNumber:             uint32(passNumber),
		PeakMagnitude:             uint16(clampUint16(mag)),
		CorrectedPeakFrequencyBin: uint16(clampUint16(float64(correctedBin))),
		SampleRateHz:              a.sampleRate,
	})
}

// prune drops peaks whose FFT pass has fallen outside the rolling window.
func (a *Accumulator) prune() {
	cutoff := a.passesDone - rollingWindowSeconds*int(a.sampleRate)/stride
	if cutoff <= 0 {
		return
	}
	for b := range a.peaks {
		peaks := a.peaks[b]
		i := 0
		for i < len(peaks) && int(peaks[i].FFTPassNumber) < cutoff {
			i++
		}
		if i > 0 {
			a.peaks[b] = append([]FrequencyPeak(nil), peaks[i:]...)
		}
	}
}

// Snapshot returns an immutable copy of the signature accumulated so far,
// without resetting any state. Used by the Processor to publish a
// signature every ~1s of audio while capture continues.
func (a *Accumulator) Snapshot() Signature {
	sig := Signature{SampleRateHz: a.sampleRate, NumSamples: a.numSamples}
	for b := range a.peaks {
		if len(a.peaks[b]) == 0 {
			continue
		}
		sig.peaks[b] = append([]FrequencyPeak(nil), a.peaks[b]...)
	}
	return sig
}

// Finalize returns the accumulated Signature, failing with InputTooShort
// if not even a single FFT pass's worth of samples has ever been written.
func (a *Accumulator) Finalize() (Signature, error) {
	if a.passesDone == 0 && a.numSamples < stride {
		return Signature{}, apperr.Newf(apperr.InputTooShort, "only %d samples accumulated, need at least %d", a.numSamples, stride)
	}
	return a.Snapshot(), nil
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}

func clampUint16(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return v
}
