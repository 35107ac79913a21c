// Package probability implements the probability mapper (C5): it turns a
// forecast's hourly samples into a per-bracket probability distribution via
// a Normal model over the daily high, with venue-specific rounding chains.
//
// Grounded directly on gopher-lab-kalshi-go's cmd/lahigh-predict/main.go,
// whose normalCDF function (math.Erf-based) is the
// double-precision Normal CDF, and whose per-bracket probability loop is
// generalized here from five fixed cases to an arbitrary bracket set.
package probability

import (
	"math"

	"github.com/weatherdesk/dynamic-trader/internal/forecast"
	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
)

// Defaults for sigma clamping.
const (
	DefaultSigma = 5.0
	MinSigma     = 0.5
	MaxSigma     = 10.0
)

// BracketProbability is C5's output for one bracket.
type BracketProbability struct {
	Bracket      marketdata.Bracket
	PModel       float64
	PMarket      *float64 // nil when unavailable
	Sigma        float64
	ExpectedHigh float64 // mu: the model's predicted daily high, venue-rounded °F
}

// RoundFunc transforms a single Kelvin sample into the venue's resolved
// Fahrenheit reading. It is the one function a design note
// asks to be isolated so other venues can substitute their own chain.
type RoundFunc func(kelvin float64) float64

// NoRounding converts Kelvin directly to Fahrenheit with no intermediate
// rounding, the "venue=none" chain.
func NoRounding(kelvin float64) float64 {
	return kelvinToFahrenheit(kelvin)
}

// PolymarketRounding implements the venue's documented resolution chain:
// Kelvin -> Celsius -> round to whole Celsius -> Fahrenheit -> round to
// whole Fahrenheit. Pure and idempotent: feeding the Kelvin equivalent of
// its own output back through it returns the same Fahrenheit value.
func PolymarketRounding(kelvin float64) float64 {
	celsius := kelvin - 273.15
	roundedCelsius := math.Round(celsius)
	fahrenheit := roundedCelsius*9/5 + 32
	return math.Round(fahrenheit)
}

func kelvinToFahrenheit(kelvin float64) float64 {
	return (kelvin-273.15)*9/5 + 32
}

// RoundFuncForVenue resolves the venue tag to its rounding chain. Unknown
// venues fall back to NoRounding.
func RoundFuncForVenue(venue string) RoundFunc {
	if venue == "polymarket" {
		return PolymarketRounding
	}
	return NoRounding
}

// normalCDF is gopher-lab-kalshi-go's exact formula, unmodified.
func normalCDF(x, mean, stdDev float64) float64 {
	return 0.5 * (1 + math.Erf((x-mean)/(stdDev*math.Sqrt2)))
}

// MapDailyHigh converts a forecast into a probability distribution over
// brackets, using the venue's rounding chain. Returned probabilities sum to
// 1.0 (within floating-point tolerance); sigma and the model's expected
// daily high (mu) are attached to every returned BracketProbability for
// introspection and downstream sizing use.
func MapDailyHigh(f *forecast.Forecast, brackets []marketdata.Bracket, venue string) []BracketProbability {
	round := RoundFuncForVenue(venue)

	samples := make([]float64, 0, len(f.Points))
	for _, p := range f.Points {
		samples = append(samples, round(p.TemperatureKelvin))
	}

	mu := maxOf(samples)
	sigma := computeSigma(samples)

	out := make([]BracketProbability, len(brackets))
	sum := 0.0
	for i, b := range brackets {
		p := bracketMass(b, mu, sigma)
		out[i] = BracketProbability{Bracket: b, PModel: p, Sigma: sigma, ExpectedHigh: mu}
		sum += p
	}

	if sum <= 0 {
		uniform := 1.0 / float64(len(out))
		for i := range out {
			out[i].PModel = uniform
		}
		return out
	}

	for i := range out {
		out[i].PModel /= sum
	}
	return out
}

func bracketMass(b marketdata.Bracket, mu, sigma float64) float64 {
	upper := 1.0
	if !b.UnboundedAbove {
		upper = normalCDF(float64(b.UpperF), mu, sigma)
	}
	lower := 0.0
	if !b.UnboundedBelow {
		lower = normalCDF(float64(b.LowerF), mu, sigma)
	}
	p := upper - lower
	if p < 0 {
		return 0
	}
	return p
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// computeSigma derives the dispersion used by the Normal model: the stdev
// of the transformed samples inflated by sqrt(2) (the realized daily high
// disperses more than a single hourly sample), floored at
// DefaultSigma*0.5, and clamped to [MinSigma, MaxSigma].
func computeSigma(samples []float64) float64 {
	floor := DefaultSigma * 0.5
	stdev := stdevOf(samples) * math.Sqrt2

	sigma := stdev
	if sigma < floor {
		sigma = floor
	}
	if sigma < MinSigma {
		sigma = MinSigma
	}
	if sigma > MaxSigma {
		sigma = MaxSigma
	}
	return sigma
}

func stdevOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))

	return math.Sqrt(variance)
}
