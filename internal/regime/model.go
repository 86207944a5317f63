package regime

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"portfolio-analytics/internal/analytics"
)

// ErrDegenerate signals that the probabilistic refinement produced a
// vanishing posterior; callers fall back to the deterministic baseline.
var ErrDegenerate = errors.New("regime: state posterior degenerated")

const numStates = 4

// Observation is one (trailing volatility, trailing return) measurement.
type Observation struct {
	Volatility float64
	Return     float64
}

// emission is a per-state Gaussian prototype over the observation space.
type emission struct {
	meanVol, sigmaVol float64
	meanRet, sigmaRet float64
}

// State order follows analytics.RegimeTypes: Bull, Bear, Normal, HighVolatility.
var emissions = [numStates]emission{
	{meanVol: 0.15, sigmaVol: 0.08, meanRet: 0.04, sigmaRet: 0.05},
	{meanVol: 0.30, sigmaVol: 0.10, meanRet: -0.05, sigmaRet: 0.05},
	{meanVol: 0.20, sigmaVol: 0.08, meanRet: 0.01, sigmaRet: 0.05},
	{meanVol: 0.45, sigmaVol: 0.15, meanRet: 0.00, sigmaRet: 0.08},
}

// StateModel is a hidden-Markov-style model over the four market states:
// an explicit row-stochastic transition matrix plus a state distribution,
// kept as concrete matrix/vector structures so classification and
// forecasting stay independently testable.
type StateModel struct {
	transition *mat.Dense
	dist       *mat.VecDense
}

// NewStateModel starts from a sticky transition matrix and a uniform
// state distribution.
func NewStateModel() *StateModel {
	transition := mat.NewDense(numStates, numStates, []float64{
		0.85, 0.03, 0.10, 0.02,
		0.04, 0.82, 0.08, 0.06,
		0.08, 0.06, 0.80, 0.06,
		0.03, 0.12, 0.10, 0.75,
	})

	dist := mat.NewVecDense(numStates, []float64{0.25, 0.25, 0.25, 0.25})
	return &StateModel{transition: transition, dist: dist}
}

// Update advances the state distribution one step and conditions it on the
// observation. The posterior replaces the stored distribution.
func (m *StateModel) Update(obs Observation) error {
	prior := mat.NewVecDense(numStates, nil)
	prior.MulVec(m.transition.T(), m.dist)

	posterior := make([]float64, numStates)
	var norm float64
	for i := 0; i < numStates; i++ {
		p := prior.AtVec(i) * likelihood(emissions[i], obs)
		posterior[i] = p
		norm += p
	}

	if norm < 1e-12 || math.IsNaN(norm) {
		return ErrDegenerate
	}

	for i := range posterior {
		posterior[i] /= norm
	}
	m.dist = mat.NewVecDense(numStates, posterior)
	return nil
}

// Distribution returns the current state probabilities keyed by regime type.
func (m *StateModel) Distribution() map[analytics.RegimeType]float64 {
	out := make(map[analytics.RegimeType]float64, numStates)
	for i, rt := range analytics.RegimeTypes {
		out[rt] = m.dist.AtVec(i)
	}
	return out
}

// MostLikely returns the argmax state and its probability.
func (m *StateModel) MostLikely() (analytics.RegimeType, float64) {
	best := 0
	for i := 1; i < numStates; i++ {
		if m.dist.AtVec(i) > m.dist.AtVec(best) {
			best = i
		}
	}
	return analytics.RegimeTypes[best], m.dist.AtVec(best)
}

// Project applies the transition matrix steps times to the current
// distribution without mutating the model.
func (m *StateModel) Project(steps int) *mat.VecDense {
	projected := mat.NewVecDense(numStates, nil)
	projected.CopyVec(m.dist)

	next := mat.NewVecDense(numStates, nil)
	for s := 0; s < steps; s++ {
		next.MulVec(m.transition.T(), projected)
		projected.CopyVec(next)
	}
	return projected
}

// TransitionProbability reads P[from, to] from the transition matrix.
func (m *StateModel) TransitionProbability(from, to analytics.RegimeType) float64 {
	return m.transition.At(stateIndex(from), stateIndex(to))
}

// Reset restores the uniform distribution. Used after a degenerate update.
func (m *StateModel) Reset() {
	m.dist = mat.NewVecDense(numStates, []float64{0.25, 0.25, 0.25, 0.25})
}

func likelihood(e emission, obs Observation) float64 {
	zv := (obs.Volatility - e.meanVol) / e.sigmaVol
	zr := (obs.Return - e.meanRet) / e.sigmaRet
	return math.Exp(-0.5*zv*zv) * math.Exp(-0.5*zr*zr)
}

func stateIndex(rt analytics.RegimeType) int {
	for i, t := range analytics.RegimeTypes {
		if t == rt {
			return i
		}
	}
	return 2 // Normal
}
