// Package sarima fits Seasonal ARIMA models of the form
// SARIMA(p,d,q)(P,D,Q)[m] by conditional sum of squares and produces
// point forecasts.
//
// A model for monthly data with yearly seasonality:
//
//	m := sarima.New(sarima.Order{P: 1, D: 1, Q: 1, SP: 1, SD: 1, SQ: 1, Period: 12})
//	if err := m.Fit(series); err != nil {
//		return err
//	}
//	next, err := m.Predict(6)
//
// Coefficients are estimated with Nelder-Mead over an unconstrained
// parameterisation that maps onto the stationary (AR) and invertible (MA)
// region through partial autocorrelations.
package sarima
