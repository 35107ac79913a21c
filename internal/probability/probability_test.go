package probability

import (
	"math"
	"testing"
	"time"

	"github.com/weatherdesk/dynamic-trader/internal/forecast"
	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
)

func fiveDegreeBrackets(lowFrom int) []marketdata.Bracket {
	var out []marketdata.Bracket
	for lo := lowFrom; lo < lowFrom+5; lo++ {
		out = append(out, marketdata.Bracket{LowerF: lo, UpperF: lo + 1, Name: "x"})
	}
	return out
}

func makeForecast(samplesF []float64) *forecast.Forecast {
	f := &forecast.Forecast{}
	for i, tempF := range samplesF {
		kelvin := (tempF-32)*5/9 + 273.15
		f.Points = append(f.Points, forecast.Point{
			Time:              time.Now().Add(time.Duration(i) * time.Hour),
			TemperatureKelvin: kelvin,
		})
	}
	return f
}

func TestNormalizationSumsToOne(t *testing.T) {
	f := makeForecast([]float64{50, 51, 52, 53, 53.6})
	brackets := fiveDegreeBrackets(50)
	probs := MapDailyHigh(f, brackets, "none")

	sum := 0.0
	for _, p := range probs {
		sum += p.PModel
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Fatalf("expected sum ~1.0, got %v", sum)
	}
}

func TestModalBracketMatchesPeak(t *testing.T) {
	f := makeForecast([]float64{50, 51, 52, 53, 53.6})
	brackets := fiveDegreeBrackets(50)
	probs := MapDailyHigh(f, brackets, "none")

	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i].PModel > probs[best].PModel {
			best = i
		}
	}
	if probs[best].Bracket.LowerF != 53 {
		t.Fatalf("expected modal bracket 53-54, got %d-%d", probs[best].Bracket.LowerF, probs[best].Bracket.UpperF)
	}
}

func TestMonotonicModeShift(t *testing.T) {
	base := makeForecast([]float64{50, 51, 52, 53, 53.6})
	shifted := makeForecast([]float64{55, 56, 57, 58, 58.6})
	brackets := fiveDegreeBrackets(45)
	extended := append(brackets, fiveDegreeBrackets(55)...)

	p1 := MapDailyHigh(base, extended, "none")
	p2 := MapDailyHigh(shifted, extended, "none")

	modeOf := func(probs []probBracket) int {
		best := 0
		for i := 1; i < len(probs); i++ {
			if probs[i].p > probs[best].p {
				best = i
			}
		}
		return probs[best].lower
	}

	m1 := modeOf(toProbBracket(p1))
	m2 := modeOf(toProbBracket(p2))
	if m2 < m1 {
		t.Fatalf("expected shifted forecast's mode >= base mode, got %d < %d", m2, m1)
	}
}

type probBracket struct {
	lower int
	p     float64
}

func toProbBracket(bp []BracketProbability) []probBracket {
	out := make([]probBracket, len(bp))
	for i, b := range bp {
		out[i] = probBracket{lower: b.Bracket.LowerF, p: b.PModel}
	}
	return out
}

func TestSigmaDispersionNonDecreasing(t *testing.T) {
	tight := makeForecast([]float64{53, 53.2, 53.6, 53.4, 53.6})
	wide := makeForecast([]float64{40, 45, 50, 53.6, 53.6})
	brackets := fiveDegreeBrackets(50)

	pt := MapDailyHigh(tight, brackets, "none")
	pw := MapDailyHigh(wide, brackets, "none")

	if pw[0].Sigma < pt[0].Sigma {
		t.Fatalf("expected wider dispersion to not decrease sigma: tight=%v wide=%v", pt[0].Sigma, pw[0].Sigma)
	}
}

func TestSigmaFloorOnDegenerateInput(t *testing.T) {
	f := makeForecast([]float64{53, 53, 53, 53, 53})
	brackets := fiveDegreeBrackets(50)
	probs := MapDailyHigh(f, brackets, "none")
	if probs[0].Sigma < DefaultSigma*0.5 {
		t.Fatalf("expected sigma floor, got %v", probs[0].Sigma)
	}
}

func TestZeroSumFallsBackToUniform(t *testing.T) {
	f := makeForecast([]float64{200, 200, 200, 200, 200})
	brackets := fiveDegreeBrackets(50)
	probs := MapDailyHigh(f, brackets, "none")

	sum := 0.0
	for _, p := range probs {
		sum += p.PModel
		if math.Abs(p.PModel-probs[0].PModel) > 1e-9 {
			t.Fatalf("expected uniform fallback")
		}
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Fatalf("expected sum ~1.0, got %v", sum)
	}
}

func TestPolymarketRoundingChain(t *testing.T) {
	// 290.928 K -> 17.78 C -> 18 C -> 64.4 F -> 64 F
	got := PolymarketRounding(290.928)
	if got != 64 {
		t.Fatalf("expected 64, got %v", got)
	}
}

func TestPolymarketRoundingIdempotent(t *testing.T) {
	k := 290.928
	first := PolymarketRounding(k)
	// re-applying the chain to an already-resolved Fahrenheit value
	// (converted back through the same pipeline) must be stable.
	kelvinAgain := (first-32)*5/9 + 273.15
	second := PolymarketRounding(kelvinAgain)
	if first != second {
		t.Fatalf("rounding chain not idempotent: %v vs %v", first, second)
	}
}

func TestUnboundedBracketsCoverTails(t *testing.T) {
	f := makeForecast([]float64{64})
	brackets := []marketdata.Bracket{
		{UnboundedBelow: true, UpperF: 56, Name: "<56"},
		{LowerF: 56, UpperF: 63, Name: "56-63"},
		{UnboundedAbove: true, LowerF: 63, Name: ">63"},
	}
	probs := MapDailyHigh(f, brackets, "none")
	sum := 0.0
	for _, p := range probs {
		sum += p.PModel
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Fatalf("expected sum ~1.0, got %v", sum)
	}
}
