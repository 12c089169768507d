package components

import "strings"

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws one block per value scaled between the series min and
// max. Missing values are drawn as spaces.
func Sparkline(values []*float64) string {
	lo, hi, seen := 0.0, 0.0, false
	for _, v := range values {
		if v == nil {
			continue
		}
		if !seen || *v < lo {
			lo = *v
		}
		if !seen || *v > hi {
			hi = *v
		}
		seen = true
	}

	var sb strings.Builder
	for _, v := range values {
		switch {
		case v == nil:
			sb.WriteRune(' ')
		case hi == lo:
			sb.WriteRune(sparkBlocks[len(sparkBlocks)/2])
		default:
			i := int((*v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
			sb.WriteRune(sparkBlocks[i])
		}
	}
	return sb.String()
}
