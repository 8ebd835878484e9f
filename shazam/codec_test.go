package shazam

import (
	"testing"

	"github.com/stretchr/testify/require"
	"tunewire/apperr"
)

func TestEncodeEmptySignature(t *testing.T) {
	sig := Signature{SampleRateHz: 16000, NumSamples: 0}
	buf := sig.Encode()

	require.Equal(t, []byte{0x80, 0x25, 0xfe, 0xca}, buf[0:4], "magic1 must lead the frame")
	require.Equal(t, []byte{0x00, 0x9c, 0x11, 0x94}, buf[12:16], "magic2 must sit at offset 12, after magic1, crc32 and length")
	require.Len(t, buf, 56, "an empty signature encodes to exactly the 56-byte header")
}

func TestCodecRoundTrip(t *testing.T) {
	sig := Signature{
		SampleRateHz: 16000,
		NumSamples:   192000,
	}
	sig.peaks[Band250To520] = []FrequencyPeak{
		{FFTPassNumber: 0, PeakMagnitude: 1000, CorrectedPeakFrequencyBin: 640, SampleRateHz: 16000},
		{FFTPassNumber: 10, PeakMagnitude: 1200, CorrectedPeakFrequencyBin: 700, SampleRateHz: 16000},
		{FFTPassNumber: 600, PeakMagnitude: 900, CorrectedPeakFrequencyBin: 650, SampleRateHz: 16000},
	}
	sig.peaks[Band520To1450] = []FrequencyPeak{
		{FFTPassNumber: 5, PeakMagnitude: 2000, CorrectedPeakFrequencyBin: 2048, SampleRateHz: 16000},
	}
	sig.peaks[Band3500To5500] = []FrequencyPeak{
		{FFTPassNumber: 1, PeakMagnitude: 500, CorrectedPeakFrequencyBin: 14000, SampleRateHz: 16000},
	}

	decoded, err := DecodeSignature(sig.Encode())
	require.NoError(t, err)
	require.Equal(t, sig.SampleRateHz, decoded.SampleRateHz)
	require.Equal(t, sig.NumSamples, decoded.NumSamples)
	for band := FrequencyBand(0); band < numBands; band++ {
		require.Equal(t, sig.Peaks(band), decoded.Peaks(band), "band %v", band)
	}
}

func TestCodecRoundTripLongFormPass(t *testing.T) {
	// A gap of >= 255 passes between peaks in the same band forces the
	// long-form (0xFF + u32) encoding; exercise that branch explicitly.
	sig := Signature{SampleRateHz: 16000, NumSamples: 1000}
	sig.peaks[Band1450To3500] = []FrequencyPeak{
		{FFTPassNumber: 0, PeakMagnitude: 10, CorrectedPeakFrequencyBin: 100, SampleRateHz: 16000},
		{FFTPassNumber: 400, PeakMagnitude: 20, CorrectedPeakFrequencyBin: 200, SampleRateHz: 16000},
		{FFTPassNumber: 405, PeakMagnitude: 30, CorrectedPeakFrequencyBin: 300, SampleRateHz: 16000},
	}

	decoded, err := DecodeSignature(sig.Encode())
	require.NoError(t, err)
	require.Equal(t, sig.Peaks(Band1450To3500), decoded.Peaks(Band1450To3500))
}

func TestURIRoundTrip(t *testing.T) {
	sig := Signature{SampleRateHz: 16000, NumSamples: 42}
	sig.peaks[Band520To1450] = []FrequencyPeak{
		{FFTPassNumber: 3, PeakMagnitude: 111, CorrectedPeakFrequencyBin: 222, SampleRateHz: 16000},
	}

	uri := sig.EncodeURI()
	require.Regexp(t, `^data:audio/vnd\.shazam\.sig;base64,`, uri)

	decoded, err := DecodeURI(uri)
	require.NoError(t, err)
	require.Equal(t, sig.Peaks(Band520To1450), decoded.Peaks(Band520To1450))
}

func TestDecodeCorruptSignature(t *testing.T) {
	sig := Signature{SampleRateHz: 16000, NumSamples: 10}
	buf := sig.Encode()
	buf[0] ^= 0xff // corrupt magic1

	_, err := DecodeSignature(buf)
	require.Error(t, err)
	require.True(t, apperr.CorruptSignature.Is(err))
}
