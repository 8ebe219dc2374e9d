package feature

import "math"

// hannWindow generates a periodic Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp      = 200.0 / 3
	melMinLogHz = 1000.0
)

var (
	melMinLogMel = melMinLogHz / melFSp
	melLogStep   = math.Log(6.4) / 27
)

// hzToMel converts frequency in Hz to the Slaney mel scale.
func hzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

// melToHz converts a Slaney mel value back to Hz.
func melToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return melFSp * mel
}

// melFilterBank creates the Slaney-normalised triangular filterbank.
// Returns [numMels][fftSize/2+1].
func melFilterBank(numMels, fftSize, sampleRate int, fmin, fmax float64) [][]float64 {
	bins := fftSize/2 + 1

	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	// numMels+2 points equally spaced on the mel scale
	lo, hi := hzToMel(fmin), hzToMel(fmax)
	melF := make([]float64, numMels+2)
	for i := range melF {
		melF[i] = melToHz(lo + (hi-lo)*float64(i)/float64(numMels+1))
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		left, center, right := melF[m], melF[m+1], melF[m+2]
		enorm := 2 / (right - left)

		filter := make([]float64, bins)
		for k, f := range fftFreqs {
			lower := (f - left) / (center - left)
			upper := (right - f) / (right - center)
			if w := min(lower, upper); w > 0 {
				filter[k] = w * enorm
			}
		}
		bank[m] = filter
	}
	return bank
}

// dctMatrix returns the first n rows of the orthonormal DCT-II basis of
// size size.
func dctMatrix(n, size int) [][]float64 {
	out := make([][]float64, n)
	for k := 0; k < n; k++ {
		scale := math.Sqrt(2 / float64(size))
		if k == 0 {
			scale = math.Sqrt(1 / float64(size))
		}
		row := make([]float64, size)
		for i := range row {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(size)))
		}
		out[k] = row
	}
	return out
}
