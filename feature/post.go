package feature

// Postprocess adds what a parameter file lacks relative to the model:
// utterance mean normalization and delta / acceleration columns.
type Postprocess struct {
	CMN         bool
	Deltas      bool // append delta and acceleration columns
	DeltaWindow int
}

// Apply runs the configured steps; frames are modified in place when only
// CMN is requested.
func (p Postprocess) Apply(frames [][]float64) [][]float64 {
	if len(frames) == 0 {
		return frames
	}
	if p.CMN {
		ApplyCMN(frames)
	}
	if p.Deltas {
		w := p.DeltaWindow
		if w <= 0 {
			w = 2
		}
		frames = AppendDeltas(frames, w)
	}
	return frames
}

// ForHTK derives the steps needed to bring a file of the given kind and
// dimension to the model dimension.
func ForHTK(h *HTK, modelDim int) Postprocess {
	p := Postprocess{CMN: h.Kind&HTKZeroMean == 0}
	if d := h.Dim(); d > 0 && h.Kind&HTKDelta == 0 && modelDim == 3*d {
		p.Deltas = true
	}
	return p
}

// ApplyCMN subtracts the per-dimension mean over all frames.
func ApplyCMN(frames [][]float64) {
	if len(frames) == 0 {
		return
	}
	dim := len(frames[0])
	mean := make([]float64, dim)
	for _, f := range frames {
		for d := range mean {
			mean[d] += f[d]
		}
	}
	inv := 1.0 / float64(len(frames))
	for d := range mean {
		mean[d] *= inv
	}
	for _, f := range frames {
		for d := range mean {
			f[d] -= mean[d]
		}
	}
}

// Delta computes regression coefficients over ±window frames, clamping at
// the edges.
func Delta(frames [][]float64, window int) [][]float64 {
	n := len(frames)
	if n == 0 {
		return nil
	}
	dim := len(frames[0])
	denom := 0.0
	for k := 1; k <= window; k++ {
		denom += float64(k * k)
	}
	denom *= 2

	out := make([][]float64, n)
	buf := make([]float64, n*dim)
	for t := range frames {
		out[t] = buf[t*dim : (t+1)*dim]
		for k := 1; k <= window; k++ {
			next, prev := t+k, t-k
			if next >= n {
				next = n - 1
			}
			if prev < 0 {
				prev = 0
			}
			for d := 0; d < dim; d++ {
				out[t][d] += float64(k) * (frames[next][d] - frames[prev][d])
			}
		}
		for d := range out[t] {
			out[t][d] /= denom
		}
	}
	return out
}

// AppendDeltas returns frames of three times the dimension: statics, deltas
// and accelerations.
func AppendDeltas(frames [][]float64, window int) [][]float64 {
	d1 := Delta(frames, window)
	d2 := Delta(d1, window)
	dim := len(frames[0])
	out := make([][]float64, len(frames))
	buf := make([]float64, len(frames)*dim*3)
	for t := range frames {
		row := buf[t*dim*3 : (t+1)*dim*3]
		copy(row, frames[t])
		copy(row[dim:], d1[t])
		copy(row[2*dim:], d2[t])
		out[t] = row
	}
	return out
}
