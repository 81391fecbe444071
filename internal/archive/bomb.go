package archive

import "fmt"

// Limits configures the decompression-bomb screen. A zero value disables
// the corresponding check.
type Limits struct {
	MaxRatio float64
	MaxDepth int
}

func DefaultLimits() Limits {
	return Limits{
		MaxRatio: 100,
		MaxDepth: 50,
	}
}

// BombCheck is the advisory result of screening a member list. The
// inspector records it in the report; enforcement is the extractor's call.
type BombCheck struct {
	Suspect bool
	Ratio   float64
	Depth   int
	Reasons []string
}

// Screen checks the expansion ratio of the whole container and the path
// depth of every member against limits. Metadata only, nothing is read.
func Screen(members []Member, archiveSize int64, limits Limits) BombCheck {
	var check BombCheck
	var uncompressed, compressed int64
	for _, m := range members {
		uncompressed += m.UncompressedSize
		compressed += m.CompressedSize
		if d := Depth(m.Path); d > check.Depth {
			check.Depth = d
		}
	}

	// The on-disk container size includes headers and the central
	// directory; prefer it, fall back to the summed member sizes.
	denominator := archiveSize
	if denominator <= 0 {
		denominator = compressed
	}
	if denominator > 0 {
		check.Ratio = float64(uncompressed) / float64(denominator)
	}

	if limits.MaxRatio > 0 && check.Ratio > limits.MaxRatio {
		check.Suspect = true
		check.Reasons = append(check.Reasons,
			fmt.Sprintf("expansion ratio %.1f exceeds %.1f", check.Ratio, limits.MaxRatio))
	}
	if limits.MaxDepth > 0 && check.Depth > limits.MaxDepth {
		check.Suspect = true
		check.Reasons = append(check.Reasons,
			fmt.Sprintf("member path depth %d exceeds %d", check.Depth, limits.MaxDepth))
	}
	return check
}
