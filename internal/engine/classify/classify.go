// Package classify computes choropleth class breaks.
package classify

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Method selects how breaks are computed.
type Method string

const (
	MethodQuantile Method = "quantile"
	MethodEqual    Method = "equal"
	MethodCustom   Method = "custom"
)

// Interpolation selects how a quantile position maps onto the sorted population.
type Interpolation string

const (
	// NearestRank takes the value at floor(q*(n-1)).
	NearestRank Interpolation = "nearest-rank"
	// Linear interpolates between the two values around (n-1)*q.
	Linear Interpolation = "linear"
)

func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodQuantile, "":
		return MethodQuantile, nil
	case MethodEqual, "equal-interval":
		return MethodEqual, nil
	case MethodCustom:
		return MethodCustom, nil
	}
	return "", fmt.Errorf("unknown classification method %q", s)
}

func ParseInterpolation(s string) (Interpolation, error) {
	switch Interpolation(strings.ToLower(strings.TrimSpace(s))) {
	case NearestRank, "nearest":
		return NearestRank, nil
	case Linear, "":
		return Linear, nil
	}
	return "", fmt.Errorf("unknown quantile interpolation %q", s)
}

// Options configures Breaks.
type Options struct {
	Method        Method
	Classes       int
	Interpolation Interpolation
	Custom        []float64
}

// Breaks returns classes-1 ascending thresholds for values. An empty
// population yields no breaks and no error. Custom breaks are returned
// as given; an empty custom list falls back to quantile breaks.
func Breaks(values []float64, opts Options) ([]float64, error) {
	if opts.Method == MethodCustom {
		if len(opts.Custom) > 0 {
			for i := 1; i < len(opts.Custom); i++ {
				if opts.Custom[i] < opts.Custom[i-1] {
					return nil, fmt.Errorf("custom breaks must be non-decreasing, got %v", opts.Custom)
				}
			}
			return append([]float64(nil), opts.Custom...), nil
		}
		opts.Method = MethodQuantile
	}
	if opts.Classes < 2 {
		return nil, fmt.Errorf("class count must be at least 2, got %d", opts.Classes)
	}
	if len(values) == 0 {
		return nil, nil
	}
	switch opts.Method {
	case MethodEqual:
		return EqualBreaks(values, opts.Classes), nil
	case MethodQuantile, "":
		return QuantileBreaks(values, opts.Classes, opts.Interpolation), nil
	}
	return nil, fmt.Errorf("unknown classification method %q", opts.Method)
}

// EqualBreaks splits [min, max] into classes intervals of equal width.
func EqualBreaks(values []float64, classes int) []float64 {
	if len(values) == 0 || classes < 2 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	step := (hi - lo) / float64(classes)
	out := make([]float64, classes-1)
	for i := range out {
		out[i] = lo + step*float64(i+1)
	}
	return out
}

// QuantileBreaks returns the i/classes quantiles for i in 1..classes-1.
func QuantileBreaks(values []float64, classes int, interp Interpolation) []float64 {
	if len(values) == 0 || classes < 2 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	out := make([]float64, 0, classes-1)
	for i := 1; i < classes; i++ {
		q := float64(i) / float64(classes)
		pos := float64(n-1) * q
		if interp == NearestRank {
			out = append(out, sorted[int(math.Floor(pos))])
			continue
		}
		base := int(math.Floor(pos))
		rest := pos - float64(base)
		if base+1 < n {
			out = append(out, sorted[base]+rest*(sorted[base+1]-sorted[base]))
		} else {
			out = append(out, sorted[base])
		}
	}
	return out
}

// ClassOf maps v to a class index: the first break that is >= v, or the
// top class when v exceeds every break.
func ClassOf(v float64, breaks []float64) int {
	for i, b := range breaks {
		if v <= b {
			return i
		}
	}
	return len(breaks)
}

// Values drops nil and non-finite entries.
func Values(in []*float64) []float64 {
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		out = append(out, *v)
	}
	return out
}
