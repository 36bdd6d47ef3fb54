package volatility

import "testing"

func TestClassifyRegime_Boundaries(t *testing.T) {
	cases := []struct {
		vix  float64
		want Regime
	}{
		{5, RegimeLow},
		{11.99, RegimeLow},
		{12, RegimeNormal},
		{19.99, RegimeNormal},
		{20, RegimeElevated},
		{29.99, RegimeElevated},
		{30, RegimePanic},
		{80, RegimePanic},
	}

	for _, tc := range cases {
		if got := ClassifyRegime(tc.vix); got != tc.want {
			t.Errorf("ClassifyRegime(%.2f) = %s, want %s", tc.vix, got, tc.want)
		}
	}
}

func TestRegimeThreshold(t *testing.T) {
	cases := []struct {
		regime Regime
		want   float64
	}{
		{RegimeLow, 0.40},
		{RegimeNormal, 0.45},
		{RegimeElevated, 0.55},
		{RegimePanic, 0.70},
		{Regime("UNKNOWN"), 0.45},
	}

	for _, tc := range cases {
		if got := tc.regime.Threshold(); got != tc.want {
			t.Errorf("%s.Threshold() = %f, want %f", tc.regime, got, tc.want)
		}
	}
}

func TestPercentile_Monotonic(t *testing.T) {
	prev := -1.0
	for _, vix := range []float64{10, 13, 17, 22, 27, 35} {
		p := Percentile(vix)
		if p <= prev {
			t.Errorf("Percentile(%.0f) = %f not increasing (prev %f)", vix, p, prev)
		}
		prev = p
	}
}
