package acoustic

import (
	"math"
	"math/rand"

	"github.com/ieee0824/twopass/internal/mathutil"
	"github.com/ieee0824/twopass/internal/simd"
)

// Density is a single multivariate Gaussian with diagonal covariance.
type Density struct {
	Mean     []float64 // [dim]
	Variance []float64 // [dim] diagonal covariance

	// Pre-computed values
	gconst      float64   // dim/2*log(2π) + 0.5*Σlog(var)
	invVariance []float64 // [dim] 1/Variance, precomputed to avoid division in hot loop
}

// NewDensity copies mean and variance into a new precomputed density.
func NewDensity(mean, variance []float64) *Density {
	d := &Density{
		Mean:     append([]float64(nil), mean...),
		Variance: append([]float64(nil), variance...),
	}
	d.Precompute()
	return d
}

// Precompute recalculates the normalisation constant and inverse variances.
// Must be called after updating Mean or Variance.
func (d *Density) Precompute() {
	dim := len(d.Mean)
	d.gconst = float64(dim)/2.0*math.Log(2*math.Pi) + 0.5*sumLog(d.Variance)
	d.invVariance = make([]float64, dim)
	for i := range d.Variance {
		d.invVariance[i] = 1.0 / d.Variance[i]
	}
}

// LogProb computes the natural-log density of observation x.
func (d *Density) LogProb(x []float64) float64 {
	maha := simd.MahalanobisAccum(x, d.Mean, d.invVariance)
	return -0.5*maha - d.gconst
}

func sumLog(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += math.Log(x)
	}
	return s
}

// Codebook is an ordered set of densities. A plain GMM state owns a private
// codebook; tied-mixture states share one and differ only in weights.
type Codebook struct {
	ID        int
	Name      string
	Densities []*Density
	Dim       int

	// SoA (Struct of Arrays) cache. All density data packed contiguously.
	soaMean   []float64 // [k*dim]
	soaInvVar []float64 // [k*dim]
	gconst    []float64 // [k]

	// Expanded Mahalanobis form for whole-codebook scoring: row i holds
	// [invVar_i, -2*invVar_i*mean_i], and proj·[x², x] + projConst_i is
	// the distance of x to density i.
	proj      []float64 // [k*2*dim]
	projConst []float64 // [k]
}

// NewCodebook builds a codebook over ds. All densities must share one dimension.
func NewCodebook(name string, ds []*Density) *Codebook {
	cb := &Codebook{ID: -1, Name: name, Densities: ds}
	if len(ds) > 0 {
		cb.Dim = len(ds[0].Mean)
	}
	cb.Precompute()
	return cb
}

// Precompute builds the SoA cache. Call after all densities are set.
func (cb *Codebook) Precompute() {
	k := len(cb.Densities)
	dim := cb.Dim
	cb.soaMean = make([]float64, k*dim)
	cb.soaInvVar = make([]float64, k*dim)
	cb.gconst = make([]float64, k)
	cb.proj = make([]float64, k*2*dim)
	cb.projConst = make([]float64, k)
	for i, d := range cb.Densities {
		if d.invVariance == nil {
			d.Precompute()
		}
		off := i * dim
		copy(cb.soaMean[off:off+dim], d.Mean)
		copy(cb.soaInvVar[off:off+dim], d.invVariance)
		cb.gconst[i] = d.gconst

		row := cb.proj[2*off : 2*off+2*dim]
		for j, iv := range d.invVariance {
			row[j] = iv
			row[dim+j] = -2 * iv * d.Mean[j]
			cb.projConst[i] += iv * d.Mean[j] * d.Mean[j]
		}
	}
}

// Len returns the number of densities.
func (cb *Codebook) Len() int { return len(cb.Densities) }

func (cb *Codebook) row(k int) (mean, invVar []float64) {
	off := k * cb.Dim
	return cb.soaMean[off : off+cb.Dim], cb.soaInvVar[off : off+cb.Dim]
}

// score returns the exact natural-log density of component k.
func (cb *Codebook) score(k int, x []float64) float64 {
	mean, invVar := cb.row(k)
	return -cb.gconst[k] - 0.5*simd.MahalanobisAccum(x, mean, invVar)
}

// State is an emitting HMM state: mixture weights over a codebook.
type State struct {
	ID         int
	Name       string
	Codebook   *Codebook
	LogWeights []float64 // natural log, len = Codebook.Len(); LogZero for absent components
}

// NewGMMState creates a state with a private codebook from explicit parameters.
func NewGMMState(name string, means, variances [][]float64, logWeights []float64) *State {
	ds := make([]*Density, len(means))
	for i := range means {
		ds[i] = NewDensity(means[i], variances[i])
	}
	return &State{
		ID:         -1,
		Name:       name,
		Codebook:   NewCodebook(name, ds),
		LogWeights: append([]float64(nil), logWeights...),
	}
}

// NewTiedState creates a tied-mixture state over a shared codebook.
func NewTiedState(name string, cb *Codebook, logWeights []float64) *State {
	return &State{
		ID:         -1,
		Name:       name,
		Codebook:   cb,
		LogWeights: append([]float64(nil), logWeights...),
	}
}

// NewRandomGMMState creates a state with k unit-variance components around
// random means, all weighted equally.
func NewRandomGMMState(name string, k, dim int, rng *rand.Rand) *State {
	means := make([][]float64, k)
	vars := make([][]float64, k)
	weights := make([]float64, k)
	logW := -math.Log(float64(k))
	for i := 0; i < k; i++ {
		means[i] = make([]float64, dim)
		vars[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			means[i][d] = rng.NormFloat64()
			vars[i][d] = 1.0
		}
		weights[i] = logW
	}
	return NewGMMState(name, means, vars, weights)
}

// LogProb computes log Σ_k w_k N(x; μ_k, σ_k) over every component, in natural log.
// It is the exhaustive reference the pruned engine is measured against.
func (s *State) LogProb(x []float64) float64 {
	cb := s.Codebook
	logSum := mathutil.LogZero
	for k := 0; k < cb.Len(); k++ {
		w := s.LogWeights[k]
		if w <= mathutil.LogZero {
			continue
		}
		logSum = mathutil.LogAdd(logSum, w+cb.score(k, x))
	}
	return logSum
}
