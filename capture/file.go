package capture

import (
	"github.com/schollz/progressbar/v3"

	"tunewire/resample"
)

// File streams mono f32 samples at resample.TargetSampleRate decoded from
// a WAV/MP3/Ogg Vorbis file on disk, with an optional progress bar for
// interactive CLI use.
type File struct {
	closer  interface{ Close() error }
	adapter *resample.Adapter
	bar     *progressbar.ProgressBar
}

// OpenFile decodes path and wraps it in a resample.Adapter. showProgress
// draws a terminal progress bar sized to the file's total sample count.
func OpenFile(path string, showProgress bool) (*File, error) {
	stream, format, err := resample.OpenFile(path)
	if err != nil {
		return nil, err
	}

	f := &File{
		closer:  stream,
		adapter: resample.NewAdapter(stream, format),
	}
	if showProgress {
		f.bar = progressbar.Default(int64(stream.Len()), "decoding")
	}
	return f, nil
}

// Next fills out with decoded samples, advancing the progress bar (if
// any) by the count produced.
func (f *File) Next(out []float32) (int, bool) {
	n, ok := f.adapter.Next(out)
	if f.bar != nil && n > 0 {
		f.bar.Add(n)
	}
	return n, ok
}

// Close releases the underlying decoder.
func (f *File) Close() error {
	if f.bar != nil {
		f.bar.Finish()
	}
	return f.closer.Close()
}
