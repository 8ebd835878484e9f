package resample

import (
	"testing"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/require"
)

// constantStereo streams a fixed stereo pair for n samples, then reports
// exhaustion, mirroring how a short in-memory test fixture would behave
// without needing a real WAV file on disk.
func constantStereo(left, right float64, n int) beep.Streamer {
	remaining := n
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if remaining <= 0 {
			return 0, false
		}
		count := len(samples)
		if count > remaining {
			count = remaining
		}
		for i := 0; i < count; i++ {
			samples[i] = [2]float64{left, right}
		}
		remaining -= count
		return count, true
	})
}

func TestAdapterDownmixesAtNativeRate(t *testing.T) {
	src := constantStereo(1, -1, TargetSampleRate)
	adapter := NewAdapter(src, beep.Format{SampleRate: TargetSampleRate, NumChannels: 2, Precision: 2})

	out := make([]float32, TargetSampleRate)
	total, read := 0, 0
	for {
		n, ok := adapter.Next(out[read:])
		total += n
		read += n
		if !ok || read >= len(out) {
			break
		}
	}
	require.Greater(t, total, 0)
	// interior samples of a constant stereo signal survive resampling
	// (even at ratio 1, which still runs through the sinc filter) close to
	// their average
	mid := total / 2
	require.InDelta(t, 0, out[mid], 0.05)
}

func TestAdapterReportsExhaustion(t *testing.T) {
	src := constantStereo(0.5, 0.5, 100)
	adapter := NewAdapter(src, beep.Format{SampleRate: TargetSampleRate, NumChannels: 2, Precision: 2})

	out := make([]float32, 1000)
	total := 0
	for i := 0; i < 10; i++ {
		n, ok := adapter.Next(out)
		total += n
		if !ok {
			return
		}
	}
	t.Fatalf("adapter never reported exhaustion after draining %d samples", total)
}
