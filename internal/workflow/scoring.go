package workflow

import (
	"errors"
	"fmt"
	"math"

	"fp-innova/internal/models"
)

// MaxCriterionScore is the upper bound of any criterion score
const MaxCriterionScore = 10.0

var (
	ErrUnknownCriterion = errors.New("score refers to a criterion outside the rubric")
	ErrScoreOutOfRange  = errors.New("score out of range")
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ReviewScore is the arithmetic mean of all criterion scores rounded to two
// decimals. An empty map scores 0.
func ReviewScore(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return round2(sum / float64(len(scores)))
}

// WeightedScore applies section weights: each section contributes the ratio of
// its scored points to the max points of the scored criteria, weighted by the
// section weight. The result is scaled to 0..10. Sections without scores are
// left out of the weighting.
func WeightedScore(rubric *models.Rubric, scores map[string]float64) float64 {
	var total, weights float64
	for _, section := range rubric.Sections {
		var got, possible float64
		for _, c := range section.Criteria {
			s, ok := scores[c.ID]
			if !ok || c.MaxScore <= 0 {
				continue
			}
			got += s
			possible += c.MaxScore
		}
		if possible == 0 || section.Weight <= 0 {
			continue
		}
		total += got / possible * section.Weight
		weights += section.Weight
	}
	if weights == 0 {
		return 0
	}
	return round2(total / weights * MaxCriterionScore)
}

// ValidateScores checks every score refers to a rubric criterion and lies
// within [0, maxScore].
func ValidateScores(rubric *models.Rubric, scores map[string]float64) error {
	for id, s := range scores {
		c, ok := rubric.Criterion(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCriterion, id)
		}
		limit := math.Min(c.MaxScore, MaxCriterionScore)
		if s < 0 || s > limit || math.IsNaN(s) {
			return fmt.Errorf("%w: %s=%v (0..%v)", ErrScoreOutOfRange, id, s, limit)
		}
	}
	return nil
}

// ProjectScore is the mean of the final review scores, nil when there are none
func ProjectScore(finalScores []float64) *float64 {
	if len(finalScores) == 0 {
		return nil
	}
	var sum float64
	for _, s := range finalScores {
		sum += s
	}
	v := round2(sum / float64(len(finalScores)))
	return &v
}
