package sarima

import "math"

// poly holds lag polynomial coefficients; poly[k] multiplies B^k.
type poly []float64

func (a poly) mul(b poly) poly {
	out := make(poly, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// arPoly builds 1 - c1 B^s - c2 B^2s ...
func arPoly(coef []float64, s int) poly {
	p := make(poly, len(coef)*s+1)
	p[0] = 1
	for i, c := range coef {
		p[(i+1)*s] = -c
	}
	return p
}

// maPoly builds 1 + c1 B^s + c2 B^2s ...
func maPoly(coef []float64, s int) poly {
	p := make(poly, len(coef)*s+1)
	p[0] = 1
	for i, c := range coef {
		p[(i+1)*s] = c
	}
	return p
}

// diffPoly builds (1-B)^d (1-B^s)^D.
func diffPoly(d, sd, s int) poly {
	out := poly{1}
	for i := 0; i < d; i++ {
		out = out.mul(poly{1, -1})
	}
	seasonal := make(poly, s+1)
	seasonal[0], seasonal[s] = 1, -1
	for i := 0; i < sd; i++ {
		out = out.mul(seasonal)
	}
	return out
}

// pacfToAR maps partial autocorrelations in (-1, 1) to the coefficients of a
// stationary AR polynomial (Durbin-Levinson recursion).
func pacfToAR(r []float64) []float64 {
	phi := make([]float64, len(r))
	prev := make([]float64, len(r))
	for k := range r {
		copy(prev, phi)
		phi[k] = r[k]
		for j := 0; j < k; j++ {
			phi[j] = prev[j] - r[k]*prev[k-1-j]
		}
	}
	return phi
}

// constrainAR maps unconstrained values to stationary AR coefficients.
func constrainAR(u []float64) []float64 {
	r := make([]float64, len(u))
	for i, v := range u {
		r[i] = math.Tanh(v)
	}
	return pacfToAR(r)
}

// constrainMA maps unconstrained values to invertible MA coefficients.
func constrainMA(u []float64) []float64 {
	phi := constrainAR(u)
	for i := range phi {
		phi[i] = -phi[i]
	}
	return phi
}
