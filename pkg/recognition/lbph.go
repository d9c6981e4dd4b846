package recognition

// Local binary pattern histograms. Each sample is encoded as LBP codes
// over a 3x3 neighborhood, histogrammed per grid cell, and the cell
// histograms are concatenated into one appearance vector. Matching is
// nearest chi-square distance between vectors; lower is stronger.

const (
	// gridCells is the number of histogram cells per axis.
	gridCells = 8
	// histBins is the number of bins per cell (one per LBP code).
	histBins = 256
)

// histogramLen is the length of a full appearance vector.
const histogramLen = gridCells * gridCells * histBins

// lbpCodes computes the 8-bit local binary pattern for every interior
// pixel of the sample. Border pixels keep code zero.
func lbpCodes(s Sample) []byte {
	codes := make([]byte, SampleSize*SampleSize)
	for y := 1; y < SampleSize-1; y++ {
		for x := 1; x < SampleSize-1; x++ {
			center := s.Pix[y*SampleSize+x]
			var code byte
			if s.Pix[(y-1)*SampleSize+(x-1)] >= center {
				code |= 1 << 7
			}
			if s.Pix[(y-1)*SampleSize+x] >= center {
				code |= 1 << 6
			}
			if s.Pix[(y-1)*SampleSize+(x+1)] >= center {
				code |= 1 << 5
			}
			if s.Pix[y*SampleSize+(x+1)] >= center {
				code |= 1 << 4
			}
			if s.Pix[(y+1)*SampleSize+(x+1)] >= center {
				code |= 1 << 3
			}
			if s.Pix[(y+1)*SampleSize+x] >= center {
				code |= 1 << 2
			}
			if s.Pix[(y+1)*SampleSize+(x-1)] >= center {
				code |= 1 << 1
			}
			if s.Pix[y*SampleSize+(x-1)] >= center {
				code |= 1
			}
			codes[y*SampleSize+x] = code
		}
	}
	return codes
}

// histogram builds the normalized per-cell histogram vector for a sample.
func histogram(s Sample) []float32 {
	codes := lbpCodes(s)
	hist := make([]float32, histogramLen)
	cellSize := SampleSize / gridCells

	for y := 0; y < SampleSize; y++ {
		cy := y / cellSize
		if cy >= gridCells {
			cy = gridCells - 1
		}
		for x := 0; x < SampleSize; x++ {
			cx := x / cellSize
			if cx >= gridCells {
				cx = gridCells - 1
			}
			cell := cy*gridCells + cx
			hist[cell*histBins+int(codes[y*SampleSize+x])]++
		}
	}

	// Normalize each cell so distances are independent of cell pixel count.
	norm := float32(cellSize * cellSize)
	for i := range hist {
		hist[i] /= norm
	}

	return hist
}

// chiSquare computes the chi-square distance between two histogram
// vectors. Zero means identical; lower is a stronger match.
func chiSquare(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		s := float64(a[i] + b[i])
		if s > 0 {
			sum += d * d / s
		}
	}
	return sum
}
