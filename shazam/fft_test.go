package shazam

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"tunewire/apperr"
)

func sineWave(freqHz float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestFinalizeInputTooShort(t *testing.T) {
	a := NewAccumulator(16000)
	a.Write(make([]float32, 10))
	_, err := a.Finalize()
	require.Error(t, err)
	require.True(t, apperr.InputTooShort.Is(err))
}

func TestDeterminism(t *testing.T) {
	samples := sineWave(1000, 16000, 16000*2)

	a1 := NewAccumulator(16000)
	a1.Write(samples)
	sig1, err := a1.Finalize()
	require.NoError(t, err)

	a2 := NewAccumulator(16000)
	a2.Write(samples)
	sig2, err := a2.Finalize()
	require.NoError(t, err)

	for b := FrequencyBand(0); b < numBands; b++ {
		require.Equal(t, sig1.Peaks(b), sig2.Peaks(b), "band %v must be bit-identical across runs", b)
	}
}

func TestDeterminismAcrossChunking(t *testing.T) {
	// Feeding the same samples in different-sized chunks must not change
	// the resulting signature: the accumulator's FFT passes are driven by
	// the stride, not by Write's call boundaries.
	samples := sineWave(1000, 16000, 16000*2)

	whole := NewAccumulator(16000)
	whole.Write(samples)
	sigWhole, err := whole.Finalize()
	require.NoError(t, err)

	chunked := NewAccumulator(16000)
	for i := 0; i < len(samples); i += 37 {
		end := i + 37
		if end > len(samples) {
			end = len(samples)
		}
		chunked.Write(samples[i:end])
	}
	sigChunked, err := chunked.Finalize()
	require.NoError(t, err)

	for b := FrequencyBand(0); b < numBands; b++ {
		require.Equal(t, sigWhole.Peaks(b), sigChunked.Peaks(b), "band %v", b)
	}
}

func TestPeakLocalityPureTone(t *testing.T) {
	a := NewAccumulator(16000)
	a.Write(sineWave(1000, 16000, 16000*3))
	sig, err := a.Finalize()
	require.NoError(t, err)

	total := sig.NumPeaks()
	require.Greater(t, total, 0, "a pure tone must produce peaks")

	inBand1 := len(sig.Peaks(Band520To1450))
	require.GreaterOrEqual(t, float64(inBand1)/float64(total), 0.9,
		"at least 90%% of peaks from a 1kHz tone must land in the 520-1450Hz band")

	for _, p := range sig.Peaks(Band520To1450) {
		hz := p.FrequencyHz()
		require.InDelta(t, 1000, hz, 64, "corrected bin must track the true 1kHz tone within tolerance")
	}
}

func TestRollingWindowForgetsOldPeaks(t *testing.T) {
	a := NewAccumulator(16000)
	a.Write(sineWave(1000, 16000, 16000*30)) // 30s of audio
	sig, err := a.Finalize()
	require.NoError(t, err)

	maxAge := rollingWindowSeconds * 16000 / stride
	for b := FrequencyBand(0); b < numBands; b++ {
		peaks := sig.Peaks(b)
		if len(peaks) == 0 {
			continue
		}
		newest := peaks[len(peaks)-1].FFTPassNumber
		oldest := peaks[0].FFTPassNumber
		require.LessOrEqual(t, int(newest-oldest), maxAge+1,
			"band %v must only reference passes from the last ~12s", b)
	}
}
