package retrieval

import (
	"math"
	"testing"
	"time"
)

func TestNormalizeMinMaxEmpty(t *testing.T) {
	if got := NormalizeMinMax(nil); got != nil {
		t.Errorf("NormalizeMinMax(nil) = %v, want nil", got)
	}
}

func TestNormalizeMinMaxSingle(t *testing.T) {
	got := NormalizeMinMax([]float64{0.42})
	if len(got) != 1 || got[0] != 1.0 {
		t.Errorf("NormalizeMinMax(single) = %v, want [1.0]", got)
	}
}

func TestNormalizeMinMaxDegenerateRange(t *testing.T) {
	got := NormalizeMinMax([]float64{3, 3, 3})
	for _, v := range got {
		if v != 1.0 {
			t.Errorf("NormalizeMinMax(equal scores) = %v, want all 1.0", got)
		}
	}
}

func TestNormalizeMinMaxSpread(t *testing.T) {
	got := NormalizeMinMax([]float64{0, 5, 10})
	want := []float64{0, 0.5, 1.0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("NormalizeMinMax spread = %v, want %v", got, want)
		}
	}
}

func TestCombineScoresWeightedSum(t *testing.T) {
	got := CombineScores([]float64{1}, []float64{0}, []float64{0}, 0.7, 0.2, 0.1)
	if math.Abs(got[0]-0.7) > 1e-9 {
		t.Errorf("CombineScores = %v, want 0.7", got[0])
	}
}

func TestCombineScoresRenormalizesNonUnitWeights(t *testing.T) {
	got := CombineScores([]float64{1}, []float64{1}, []float64{1}, 1, 1, 1)
	if math.Abs(got[0]-1.0) > 1e-9 {
		t.Errorf("CombineScores with equal weights summing to 3 = %v, want 1.0 after renormalization", got[0])
	}
}

func TestCombineScoresEmpty(t *testing.T) {
	if got := CombineScores(nil, nil, nil, 1, 0, 0); got != nil {
		t.Errorf("CombineScores(empty) = %v, want nil", got)
	}
}

func TestRecencyScoreZeroTime(t *testing.T) {
	if got := RecencyScore(time.Time{}, time.Now()); got != 0.0 {
		t.Errorf("RecencyScore(zero time) = %v, want 0.0", got)
	}
}

func TestRecencyScoreDecaysWithAge(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	fresh := RecencyScore(now, now)
	if math.Abs(fresh-1.0) > 1e-9 {
		t.Errorf("RecencyScore(no age) = %v, want ~1.0", fresh)
	}

	yearOld := RecencyScore(now.AddDate(-1, 0, 0), now)
	if math.Abs(yearOld-math.Exp(-1)) > 0.01 {
		t.Errorf("RecencyScore(1 year old) = %v, want ~%v", yearOld, math.Exp(-1))
	}

	older := RecencyScore(now.AddDate(-2, 0, 0), now)
	if older >= yearOld {
		t.Errorf("older document should score lower: older=%v, yearOld=%v", older, yearOld)
	}
}
