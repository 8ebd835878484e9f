// Package resample implements the resampler/decoder adapter: given an
// arbitrary-rate, possibly multi-channel PCM source, it produces a mono
// f32 stream at 16kHz for the fingerprinting core.
package resample

import (
	"net/http"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	"tunewire/apperr"
)

// TargetSampleRate is the fixed rate every Adapter produces: all DSP
// downstream operates on mono 16kHz.
const TargetSampleRate = 16000

// resampleQuality is beep.ResampleRatio's sinc quality, high enough to
// preserve the 250-5500Hz peak range the fingerprinting core looks at.
const resampleQuality = 6

// OpenFile detects a file's container from its leading bytes and returns a
// decoded, seekable streamer alongside its native format. Fails with
// UnsupportedFormat for anything that isn't WAV, MP3, or Ogg Vorbis.
func OpenFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, apperr.New(apperr.UnsupportedFormat, err)
	}

	mimeBuf := make([]byte, 512)
	if _, err := f.ReadAt(mimeBuf, 0); err != nil {
		f.Close()
		return nil, beep.Format{}, apperr.New(apperr.UnsupportedFormat, err)
	}

	switch http.DetectContentType(mimeBuf) {
	case "audio/wave":
		s, format, err := wav.Decode(f)
		return wrapErr(s, format, err)
	case "audio/mpeg":
		s, format, err := mp3.Decode(f)
		return wrapErr(s, format, err)
	case "application/ogg":
		s, format, err := vorbis.Decode(f)
		return wrapErr(s, format, err)
	default:
		f.Close()
		return nil, beep.Format{}, apperr.Newf(apperr.UnsupportedFormat, "unrecognized audio container")
	}
}

func wrapErr(s beep.StreamSeekCloser, format beep.Format, err error) (beep.StreamSeekCloser, beep.Format, error) {
	if err != nil {
		return nil, beep.Format{}, apperr.New(apperr.UnsupportedFormat, err)
	}
	return s, format, nil
}

// Adapter downmixes and resamples an arbitrary beep.Streamer to mono f32
// at TargetSampleRate.
type Adapter struct {
	resampled beep.Streamer
	buf       [][2]float64
}

// NewAdapter wraps s (at its native format.SampleRate) so Next always
// yields 16kHz mono samples, regardless of the source's rate or channel
// count.
func NewAdapter(s beep.Streamer, format beep.Format) *Adapter {
	ratio := float64(format.SampleRate) / TargetSampleRate
	return &Adapter{resampled: beep.ResampleRatio(resampleQuality, ratio, s)}
}

// Next fills out with up to len(out) mono f32 samples, downmixing stereo
// by averaging channels. It reports how many samples were written and
// whether the underlying source is exhausted.
func (a *Adapter) Next(out []float32) (int, bool) {
	if cap(a.buf) < len(out) {
		a.buf = make([][2]float64, len(out))
	}
	buf := a.buf[:len(out)]
	n, ok := a.resampled.Stream(buf)
	for i := 0; i < n; i++ {
		out[i] = float32((buf[i][0] + buf[i][1]) / 2)
	}
	return n, ok
}
