package descriptor

import (
	"fmt"
	"math"
)

// AspectRatio is a supported width:height label.
type AspectRatio string

// Supported aspect ratios.
const (
	Ratio1x1  AspectRatio = "1:1"
	Ratio4x3  AspectRatio = "4:3"
	Ratio3x4  AspectRatio = "3:4"
	Ratio3x2  AspectRatio = "3:2"
	Ratio2x3  AspectRatio = "2:3"
	Ratio16x9 AspectRatio = "16:9"
	Ratio9x16 AspectRatio = "9:16"
	Ratio21x9 AspectRatio = "21:9"
)

// ResolutionTier is a discrete output size class.
type ResolutionTier string

// Supported resolution tiers.
const (
	Tier1K ResolutionTier = "1K"
	Tier2K ResolutionTier = "2K"
)

// Fallbacks used when a size cannot be classified.
const (
	FallbackRatio = Ratio1x1
	FallbackTier  = Tier1K
)

type ratioSpec struct {
	label AspectRatio
	w, h  int
}

// ratios is ordered; ties in Classify resolve to the earlier entry.
var ratios = []ratioSpec{
	{Ratio1x1, 1, 1},
	{Ratio4x3, 4, 3},
	{Ratio3x4, 3, 4},
	{Ratio3x2, 3, 2},
	{Ratio2x3, 2, 3},
	{Ratio16x9, 16, 9},
	{Ratio9x16, 9, 16},
	{Ratio21x9, 21, 9},
}

var tierLongEdge = map[ResolutionTier]int{
	Tier1K: 1024,
	Tier2K: 2048,
}

// tierBoundary is the long edge above which a size classifies as 2K.
const tierBoundary = 1536

// dimensionStep is the multiple every derived short edge is rounded to.
const dimensionStep = 16

// AspectRatios returns the supported ratios in table order.
func AspectRatios() []AspectRatio {
	out := make([]AspectRatio, len(ratios))
	for i, r := range ratios {
		out[i] = r.label
	}
	return out
}

// ValidAspectRatio reports whether r is in the table.
func ValidAspectRatio(r string) bool {
	_, ok := lookupRatio(AspectRatio(r))
	return ok
}

// ValidTier reports whether t is a supported tier.
func ValidTier(t string) bool {
	_, ok := tierLongEdge[ResolutionTier(t)]
	return ok
}

func lookupRatio(label AspectRatio) (ratioSpec, bool) {
	for _, r := range ratios {
		if r.label == label {
			return r, true
		}
	}
	return ratioSpec{}, false
}

// Dimensions returns the pixel size for a ratio and tier. The long edge is the
// tier's edge and the short edge is rounded to a multiple of 16.
func Dimensions(ratio AspectRatio, tier ResolutionTier) (width, height int, err error) {
	rs, ok := lookupRatio(ratio)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownAspectRatio, ratio)
	}
	long, ok := tierLongEdge[tier]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	if rs.w >= rs.h {
		return long, roundToStep(float64(long) * float64(rs.h) / float64(rs.w)), nil
	}
	return roundToStep(float64(long) * float64(rs.w) / float64(rs.h)), long, nil
}

// Classify maps a pixel size back to the nearest supported ratio and tier.
// It is total: non-positive input yields the fallback ratio and tier.
func Classify(width, height int) (AspectRatio, ResolutionTier) {
	if width <= 0 || height <= 0 {
		return FallbackRatio, FallbackTier
	}

	target := math.Log(float64(width) / float64(height))
	best := ratios[0]
	bestDist := math.Inf(1)
	for _, r := range ratios {
		d := math.Abs(target - math.Log(float64(r.w)/float64(r.h)))
		if d < bestDist {
			best, bestDist = r, d
		}
	}

	tier := Tier1K
	if max(width, height) > tierBoundary {
		tier = Tier2K
	}
	return best.label, tier
}

func roundToStep(v float64) int {
	n := int(math.Round(v/dimensionStep)) * dimensionStep
	if n < dimensionStep {
		return dimensionStep
	}
	return n
}
