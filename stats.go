package autover

import (
	"math"
	"strconv"
)

// NewChangeStats measures diff against the line count of the tree at the
// target commit. The size before the change is used as the denominator; when
// that is not positive (a new or rewritten tree) the larger of insertions and
// deletions stands in for it.
func NewChangeStats(baselineLines int, diff DiffSummary) ChangeStats {
	total := baselineLines - diff.Insertions + diff.Deletions
	if total <= 0 {
		total = max(diff.Insertions, diff.Deletions)
	}

	stats := ChangeStats{DiffSummary: diff, TotalLines: total}
	if total == 0 {
		return stats
	}

	stats.InsertionPercent = math.Abs(round2(float64(diff.Insertions) / float64(total) * 100))
	stats.DeletionPercent = math.Abs(round2(float64(diff.Deletions) / float64(total) * 100))
	return stats
}

// Max is the larger of the insertion and deletion percentages
func (s ChangeStats) Max() float64 {
	return math.Max(s.InsertionPercent, s.DeletionPercent)
}

// Min is the smaller of the insertion and deletion percentages
func (s ChangeStats) Min() float64 {
	return math.Min(s.InsertionPercent, s.DeletionPercent)
}

func (s ChangeStats) Average() float64 {
	return round2((s.InsertionPercent + s.DeletionPercent) / 2)
}

func (s ChangeStats) Cumulative() float64 {
	return round2(s.InsertionPercent + s.DeletionPercent)
}

// round2 rounds half to even, so 0.125 becomes 0.12
func round2(f float64) float64 {
	return math.RoundToEven(f*100) / 100
}

// formatPercent writes a percentage the way CI consumers have always read
// it: integral values keep one decimal ("5.0").
func formatPercent(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f == math.Trunc(f) {
		s += ".0"
	}
	return s
}
