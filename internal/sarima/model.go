package sarima

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

var (
	ErrTooShort   = errors.New("sarima: series too short for model order")
	ErrNotFitted  = errors.New("sarima: model not fitted")
	ErrNonFinite  = errors.New("sarima: series contains non-finite values")
	ErrBadOrder   = errors.New("sarima: invalid model order")
	ErrBadHorizon = errors.New("sarima: forecast steps must be positive")
)

// Order is SARIMA(P,D,Q)(SP,SD,SQ)[Period].
type Order struct {
	P, D, Q    int
	SP, SD, SQ int
	Period     int
}

// String renders the order the usual way, e.g. "SARIMA(1,1,1)(1,1,1)[12]".
func (o Order) String() string {
	return fmt.Sprintf("SARIMA(%d,%d,%d)(%d,%d,%d)[%d]", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.Period)
}

func (o Order) seasonal() bool { return o.SP > 0 || o.SD > 0 || o.SQ > 0 }

// validate accepts p,q,P,Q in {0,1}, d in {0,1,2} and D in {0,1}.
func (o Order) validate() error {
	for _, v := range []int{o.P, o.Q, o.SP, o.SQ, o.SD} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s", ErrBadOrder, o)
		}
	}
	if o.D < 0 || o.D > 2 {
		return fmt.Errorf("%w: %s", ErrBadOrder, o)
	}
	if o.seasonal() && o.Period < 2 {
		return fmt.Errorf("%w: seasonal terms need period >= 2, got %d", ErrBadOrder, o.Period)
	}
	return nil
}

func (o Order) period() int {
	if o.seasonal() {
		return o.Period
	}
	return 1
}

// numParams counts the estimated coefficients.
func (o Order) numParams() int { return o.P + o.Q + o.SP + o.SQ }

// MinObservations is the shortest series Fit accepts for this order.
func (o Order) MinObservations() int {
	s := o.period()
	diffLag := o.D + o.SD*s
	arLag := o.P + o.SP*s
	return diffLag + arLag + o.numParams() + 2
}

// Coefficients are the fitted polynomial coefficients, signs as in
// (1 - AR B)(1 - SAR B^s) w = (1 + MA B)(1 + SMA B^s) e.
type Coefficients struct {
	AR  []float64 `json:"ar,omitempty"`
	MA  []float64 `json:"ma,omitempty"`
	SAR []float64 `json:"sar,omitempty"`
	SMA []float64 `json:"sma,omitempty"`
}

// Model is a SARIMA model. It is not safe for concurrent Fit calls.
type Model struct {
	Order Order

	Coef   Coefficients
	Sigma2 float64
	AIC    float64
	BIC    float64
	N      int

	fitted bool
	y      []float64
	w      []float64
	resid  []float64
	ar, ma poly
}

// New returns an unfitted model with the given order.
func New(order Order) *Model {
	return &Model{Order: order}
}

// Fit estimates the model coefficients from y.
func (m *Model) Fit(y []float64) error {
	if err := m.Order.validate(); err != nil {
		return err
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	if len(y) < m.Order.MinObservations() {
		return fmt.Errorf("%w: have %d observations, need %d", ErrTooShort, len(y), m.Order.MinObservations())
	}

	s := m.Order.period()
	w := difference(y, diffPoly(m.Order.D, m.Order.SD, s))
	k := m.Order.numParams()

	var x []float64
	if k > 0 {
		problem := optimize.Problem{
			Func: func(u []float64) float64 {
				ar, ma := m.polys(u)
				sse, _ := css(w, ar, ma)
				return sse
			},
		}
		x0 := make([]float64, k)
		settings := &optimize.Settings{MajorIterations: 4000}
		res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if res == nil || !finite(res.X) {
			if err == nil {
				err = errors.New("no solution")
			}
			return fmt.Errorf("sarima: optimise: %w", err)
		}
		x = res.X
	}

	m.ar, m.ma = m.polys(x)
	m.Coef = m.coefficients(x)
	sse, resid := css(w, m.ar, m.ma)

	nres := len(w) - (len(m.ar) - 1)
	m.N = nres
	m.Sigma2 = sse / float64(nres)
	m.AIC, m.BIC = 0, 0
	if m.Sigma2 > 0 {
		ll := -0.5 * float64(nres) * (math.Log(2*math.Pi*m.Sigma2) + 1)
		kk := float64(k + 1)
		m.AIC = -2*ll + 2*kk
		m.BIC = -2*ll + math.Log(float64(nres))*kk
	}

	m.y = append([]float64(nil), y...)
	m.w = w
	m.resid = resid
	m.fitted = true
	return nil
}

// Predict returns point forecasts for the next steps observations.
func (m *Model) Predict(steps int) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if steps <= 0 {
		return nil, ErrBadHorizon
	}

	n := len(m.w)
	w := append(append([]float64(nil), m.w...), make([]float64, steps)...)
	e := append(append([]float64(nil), m.resid...), make([]float64, steps)...)
	for t := n; t < n+steps; t++ {
		v := 0.0
		for j := 1; j < len(m.ar); j++ {
			if t-j >= 0 {
				v -= m.ar[j] * w[t-j]
			}
		}
		for j := 1; j < len(m.ma); j++ {
			if t-j >= 0 {
				v += m.ma[j] * e[t-j]
			}
		}
		w[t] = v
	}

	s := m.Order.period()
	dp := diffPoly(m.Order.D, m.Order.SD, s)
	y := append(append([]float64(nil), m.y...), make([]float64, steps)...)
	base := len(m.y)
	for h := 0; h < steps; h++ {
		t := base + h
		v := w[n+h]
		for j := 1; j < len(dp); j++ {
			v -= dp[j] * y[t-j]
		}
		y[t] = v
	}
	return y[base:], nil
}

// Residuals returns a copy of the in-sample one step residuals of the
// differenced series.
func (m *Model) Residuals() []float64 {
	return append([]float64(nil), m.resid...)
}

func (m *Model) split(u []float64) (ar, ma, sar, sma []float64) {
	o := m.Order
	i := 0
	take := func(n int) []float64 {
		v := u[i : i+n]
		i += n
		return v
	}
	return take(o.P), take(o.Q), take(o.SP), take(o.SQ)
}

func (m *Model) coefficients(u []float64) Coefficients {
	if len(u) == 0 {
		return Coefficients{}
	}
	ar, ma, sar, sma := m.split(u)
	return Coefficients{
		AR:  constrainAR(ar),
		MA:  constrainMA(ma),
		SAR: constrainAR(sar),
		SMA: constrainMA(sma),
	}
}

func (m *Model) polys(u []float64) (poly, poly) {
	c := m.coefficients(u)
	s := m.Order.period()
	ar := arPoly(c.AR, 1).mul(arPoly(c.SAR, s))
	ma := maPoly(c.MA, 1).mul(maPoly(c.SMA, s))
	return ar, ma
}

// difference applies the differencing polynomial to y.
func difference(y []float64, dp poly) []float64 {
	k := len(dp) - 1
	if len(y) <= k {
		return nil
	}
	w := make([]float64, len(y)-k)
	for t := k; t < len(y); t++ {
		v := 0.0
		for j, c := range dp {
			v += c * y[t-j]
		}
		w[t-k] = v
	}
	return w
}

// css returns the conditional sum of squares and the residual series.
// Residuals before the first full AR window are zero.
func css(w []float64, ar, ma poly) (float64, []float64) {
	start := len(ar) - 1
	e := make([]float64, len(w))
	sse := 0.0
	for t := start; t < len(w); t++ {
		v := w[t]
		for j := 1; j < len(ar); j++ {
			v += ar[j] * w[t-j]
		}
		for j := 1; j < len(ma); j++ {
			if t-j >= 0 {
				v -= ma[j] * e[t-j]
			}
		}
		e[t] = v
		sse += v * v
	}
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return math.MaxFloat64, e
	}
	return sse, e
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
