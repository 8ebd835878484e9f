// Package capture provides the two concrete pipeline.AudioSource
// implementations the CLI shell wires up: a live microphone via
// gordonklaus/portaudio, and a decoded file via the resample package.
//
// The microphone source is grounded on DanielCarmel-media-luna's
// MicrophoneRecorder audio-callback pattern: open a blocking portaudio
// stream at the target rate and channel count, then drain it with Read
// into caller-supplied buffers.
package capture

import (
	"github.com/gordonklaus/portaudio"

	"tunewire/apperr"
	"tunewire/resample"
)

// Microphone streams mono f32 samples at resample.TargetSampleRate from
// the default (or a named) input device.
type Microphone struct {
	stream *portaudio.Stream
	buf    []float32
}

// OpenMicrophone initializes portaudio and opens a blocking input stream.
// deviceName selects a specific device by (substring) name; an empty
// string uses the host API's default input device.
func OpenMicrophone(deviceName string) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperr.New(apperr.CaptureDeviceUnavailable, err)
	}

	device, err := selectInputDevice(deviceName)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	const framesPerBuffer = 2048
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(resample.TargetSampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, apperr.New(apperr.CaptureDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, apperr.New(apperr.CaptureDeviceUnavailable, err)
	}

	return &Microphone{stream: stream, buf: buf}, nil
}

func selectInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		host, err := portaudio.DefaultHostApi()
		if err != nil {
			return nil, apperr.New(apperr.CaptureDeviceUnavailable, err)
		}
		if host.DefaultInputDevice == nil {
			return nil, apperr.Newf(apperr.CaptureDeviceUnavailable, "no default input device")
		}
		return host.DefaultInputDevice, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperr.New(apperr.CaptureDeviceUnavailable, err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && contains(d.Name, name) {
			return d, nil
		}
	}
	return nil, apperr.Newf(apperr.CaptureDeviceUnavailable, "no input device matching %q", name)
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// Next blocks until portaudio has filled one 2048-frame read buffer,
// then copies up to len(out) of those samples into out; when out is
// shorter than the read, the remaining samples are discarded. ok is false
// once the stream has been closed or a read fails.
func (m *Microphone) Next(out []float32) (int, bool) {
	if m.stream == nil {
		return 0, false
	}
	n := len(out)
	if n > len(m.buf) {
		n = len(m.buf)
	}
	if err := m.stream.Read(); err != nil {
		return 0, false
	}
	copy(out[:n], m.buf[:n])
	return n, true
}

// Close stops the stream and releases portaudio's process-wide state.
func (m *Microphone) Close() error {
	if m.stream == nil {
		return nil
	}
	err := m.stream.Close()
	portaudio.Terminate()
	m.stream = nil
	return err
}
