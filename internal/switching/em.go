package switching

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// minVariance below which a regime is considered collapsed onto a point
	minVariance = 1e-8
	// minRegimeWeight is the smallest expected number of periods a regime may hold
	minRegimeWeight = 1.0
	// initialPersistence is the starting diagonal of the transition matrix
	initialPersistence = 0.9
)

var (
	errVarianceCollapse = errors.New("regime variance collapsed")
	errEmptyRegime      = errors.New("regime holds no observations")
	errNonFinite        = errors.New("non-finite log-likelihood")
	errIterationCap     = errors.New("iteration cap reached")
	errFitTimeout       = errors.New("timed out")
)

// params of y_t = mu_s + phi . x_t + e_t, e_t ~ N(0, sigma2_s)
type params struct {
	k, p   int
	mu     []float64
	sigma2 []float64
	phi    []float64
	trans  [][]float64
	init   []float64
}

// design holds the effective observations y_t and their lag vectors x_t for t >= p
type design struct {
	y []float64
	x [][]float64
}

func newDesign(series []float64, p int) design {
	d := design{y: make([]float64, 0, len(series)-p), x: make([][]float64, 0, len(series)-p)}
	for t := p; t < len(series); t++ {
		lags := make([]float64, p)
		for i := 0; i < p; i++ {
			lags[i] = series[t-1-i]
		}
		d.y = append(d.y, series[t])
		d.x = append(d.x, lags)
	}
	return d
}

func (d design) len() int { return len(d.y) }

func (par *params) ar(x []float64) float64 {
	if par.p == 0 {
		return 0
	}
	return floats.Dot(par.phi, x)
}

// initialParams splits the sorted observations into k quantile groups
func initialParams(d design, k, p int) *params {
	sorted := append([]float64(nil), d.y...)
	sort.Float64s(sorted)
	total := stat.Variance(d.y, nil)

	par := &params{
		k:      k,
		p:      p,
		mu:     make([]float64, k),
		sigma2: make([]float64, k),
		phi:    make([]float64, p),
		trans:  make([][]float64, k),
		init:   make([]float64, k),
	}
	n := len(sorted)
	for j := 0; j < k; j++ {
		group := sorted[j*n/k : (j+1)*n/k]
		par.mu[j] = stat.Mean(group, nil)
		v := 0.0
		if len(group) > 1 {
			v = stat.Variance(group, nil)
		}
		par.sigma2[j] = math.Max(v, 0.1*total)
		par.init[j] = 1 / float64(k)

		par.trans[j] = make([]float64, k)
		for i := range par.trans[j] {
			if i == j {
				par.trans[j][i] = initialPersistence
			} else {
				par.trans[j][i] = (1 - initialPersistence) / float64(k-1)
			}
		}
	}
	return par
}

// filterResult is the output of the Hamilton filter
type filterResult struct {
	filtered  [][]float64 // P(s_t | y_1..t)
	predicted [][]float64 // P(s_t | y_1..t-1)
	ll        float64
}

// filter runs the Hamilton filter with densities scaled in log space
func filter(par *params, d design) filterResult {
	T, k := d.len(), par.k
	res := filterResult{filtered: matrix(T, k), predicted: matrix(T, k)}
	copy(res.predicted[0], par.init)

	logd := make([]float64, k)
	for t := 0; t < T; t++ {
		if t > 0 {
			for j := 0; j < k; j++ {
				s := 0.0
				for i := 0; i < k; i++ {
					s += res.filtered[t-1][i] * par.trans[i][j]
				}
				res.predicted[t][j] = s
			}
		}

		ar := par.ar(d.x[t])
		mx := math.Inf(-1)
		for j := 0; j < k; j++ {
			e := d.y[t] - par.mu[j] - ar
			logd[j] = -0.5 * (math.Log(2*math.Pi*par.sigma2[j]) + e*e/par.sigma2[j])
			if logd[j] > mx {
				mx = logd[j]
			}
		}

		c := 0.0
		for j := 0; j < k; j++ {
			w := res.predicted[t][j] * math.Exp(logd[j]-mx)
			res.filtered[t][j] = w
			c += w
		}
		if c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) || math.IsInf(mx, 0) {
			res.ll = math.Inf(-1)
			return res
		}
		floats.Scale(1/c, res.filtered[t])
		res.ll += mx + math.Log(c)
	}
	return res
}

// smooth runs the Kim smoother and accumulates the joint probabilities
// P(s_t=i, s_t+1=j | y_1..T) summed over t
func smooth(par *params, fr filterResult) (smoothed [][]float64, joint [][]float64) {
	T, k := len(fr.filtered), par.k
	smoothed = matrix(T, k)
	joint = matrix(k, k)
	copy(smoothed[T-1], fr.filtered[T-1])

	ratio := make([]float64, k)
	for t := T - 2; t >= 0; t-- {
		for j := 0; j < k; j++ {
			ratio[j] = 0
			if fr.predicted[t+1][j] > 0 {
				ratio[j] = smoothed[t+1][j] / fr.predicted[t+1][j]
			}
		}
		for i := 0; i < k; i++ {
			s := 0.0
			for j := 0; j < k; j++ {
				pair := fr.filtered[t][i] * par.trans[i][j] * ratio[j]
				joint[i][j] += pair
				s += par.trans[i][j] * ratio[j]
			}
			smoothed[t][i] = fr.filtered[t][i] * s
		}
		normalize(smoothed[t])
	}
	return smoothed, joint
}

// maximize updates the parameters from the smoothed probabilities: transitions from the
// joint probabilities, means given phi, phi by weighted least squares, then variances
func (par *params) maximize(d design, smoothed, joint [][]float64) error {
	k, T := par.k, d.len()

	for i := 0; i < k; i++ {
		row := floats.Sum(joint[i])
		if row <= 0 {
			continue
		}
		for j := 0; j < k; j++ {
			par.trans[i][j] = joint[i][j] / row
		}
	}
	copy(par.init, smoothed[0])

	weight := make([]float64, k)
	for t := 0; t < T; t++ {
		floats.Add(weight, smoothed[t])
	}
	for j := 0; j < k; j++ {
		if weight[j] < minRegimeWeight {
			return errEmptyRegime
		}
	}

	for j := 0; j < k; j++ {
		s := 0.0
		for t := 0; t < T; t++ {
			s += smoothed[t][j] * (d.y[t] - par.ar(d.x[t]))
		}
		par.mu[j] = s / weight[j]
	}

	if par.p > 0 {
		a := mat.NewDense(par.p, par.p, nil)
		b := mat.NewVecDense(par.p, nil)
		for t := 0; t < T; t++ {
			x := mat.NewVecDense(par.p, d.x[t])
			for j := 0; j < k; j++ {
				w := smoothed[t][j] / par.sigma2[j]
				if w == 0 {
					continue
				}
				a.RankOne(a, w, x, x)
				b.AddScaledVec(b, w*(d.y[t]-par.mu[j]), x)
			}
		}
		var phi mat.VecDense
		if err := phi.SolveVec(a, b); err == nil {
			for i := 0; i < par.p; i++ {
				par.phi[i] = phi.AtVec(i)
			}
		}
	}

	for j := 0; j < k; j++ {
		s := 0.0
		for t := 0; t < T; t++ {
			e := d.y[t] - par.mu[j] - par.ar(d.x[t])
			s += smoothed[t][j] * e * e
		}
		par.sigma2[j] = s / weight[j]
		if par.sigma2[j] < minVariance || math.IsNaN(par.sigma2[j]) {
			return errVarianceCollapse
		}
	}
	return nil
}

// reorder permutes regimes into ascending order of mean
func (par *params) reorder(perm []int) {
	mu := make([]float64, par.k)
	sigma2 := make([]float64, par.k)
	init := make([]float64, par.k)
	trans := matrix(par.k, par.k)
	for newI, oldI := range perm {
		mu[newI] = par.mu[oldI]
		sigma2[newI] = par.sigma2[oldI]
		init[newI] = par.init[oldI]
		for newJ, oldJ := range perm {
			trans[newI][newJ] = par.trans[oldI][oldJ]
		}
	}
	par.mu, par.sigma2, par.init, par.trans = mu, sigma2, init, trans
}

func ascendingOrder(values []float64) []int {
	perm := make([]int, len(values))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return values[perm[a]] < values[perm[b]] })
	return perm
}

func permuteRows(rows [][]float64, perm []int) [][]float64 {
	out := make([][]float64, len(rows))
	for t, row := range rows {
		out[t] = make([]float64, len(perm))
		for newI, oldI := range perm {
			out[t][newI] = row[oldI]
		}
	}
	return out
}

func matrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func normalize(v []float64) {
	s := floats.Sum(v)
	if !(s > 0) || math.IsInf(s, 0) {
		for i := range v {
			v[i] = 1 / float64(len(v))
		}
		return
	}
	floats.Scale(1/s, v)
}
