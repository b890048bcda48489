package targets

import (
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  float64
	}{
		{name: "nil", value: nil, want: 0},
		{name: "float64", value: 1234.56, want: 1234.56},
		{name: "float32", value: float32(2.5), want: 2.5},
		{name: "int", value: 42, want: 42},
		{name: "int64", value: int64(7), want: 7},
		{name: "numeric string", value: "99.95", want: 99.95},
		{name: "string with spaces", value: "  15000 ", want: 15000},
		{name: "empty string", value: "", want: 0},
		{name: "garbage string", value: "abc", want: 0},
		{name: "nan", value: math.NaN(), want: 0},
		{name: "positive inf", value: math.Inf(1), want: 0},
		{name: "negative inf string", value: "-Inf", want: 0},
		{name: "bool is unsupported", value: true, want: 0},
		{name: "negative", value: -12.5, want: -12.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseAmount(tc.value); got != tc.want {
				t.Fatalf("ParseAmount(%v) = %g, want %g", tc.value, got, tc.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	if got := round2(10.567); got != 10.57 {
		t.Fatalf("round2(10.567) = %g, want 10.57", got)
	}
	if got := round2(10.564); got != 10.56 {
		t.Fatalf("round2(10.564) = %g, want 10.56", got)
	}
}
