package shazam

import "math"

// windowSize is the FFT window length: 2048 samples at 16 kHz (~128ms).
const windowSize = 2048

// stride is the number of new samples consumed between successive FFT
// passes (~8ms at 16 kHz).
const stride = 128

// fftBins is the number of real-FFT bins produced by a windowSize-point FFT.
const fftBins = windowSize/2 + 1

// hannWindow holds the precomputed Hann taper h[n] = 0.5*(1-cos(2*pi*n/(N-1))),
// computed once at package init and shared read-only by every Accumulator.
var hannWindow [windowSize]float64

func init() {
	for n := 0; n < windowSize; n++ {
		hannWindow[n] = 0.5 * (1 - math.Cos(2*math.Pi*float64(n)/float64(windowSize-1)))
	}
}
