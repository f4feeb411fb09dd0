package workflow

import (
	"errors"
	"fmt"
	"math"

	"fp-innova/internal/models"
)

// WeightTolerance is the allowed deviation of the section weight sum from 100
const WeightTolerance = 0.01

var ErrInvalidRubric = errors.New("invalid rubric")

// ValidateRubric checks the structural rules a rubric must satisfy before it is stored
func ValidateRubric(r *models.Rubric) error {
	if len(r.Sections) == 0 {
		return fmt.Errorf("%w: at least one section is required", ErrInvalidRubric)
	}

	var weights float64
	sectionIDs := map[string]bool{}
	criterionIDs := map[string]bool{}

	for _, s := range r.Sections {
		if sectionIDs[s.ID] {
			return fmt.Errorf("%w: duplicate section id %q", ErrInvalidRubric, s.ID)
		}
		sectionIDs[s.ID] = true
		weights += s.Weight

		for _, c := range s.Criteria {
			if criterionIDs[c.ID] {
				return fmt.Errorf("%w: duplicate criterion id %q", ErrInvalidRubric, c.ID)
			}
			criterionIDs[c.ID] = true
			if c.MaxScore <= 0 {
				return fmt.Errorf("%w: criterion %q needs a max score above 0", ErrInvalidRubric, c.ID)
			}

			if c.SectionID != "" && c.SectionID != s.ID {
				return fmt.Errorf("%w: criterion %q declares section %q but is listed under %q",
					ErrInvalidRubric, c.ID, c.SectionID, s.ID)
			}
			for _, l := range c.Levels {
				if l.Score < 0 || l.Score > c.MaxScore {
					return fmt.Errorf("%w: level %q of criterion %q scores %v outside 0..%v",
						ErrInvalidRubric, l.ID, c.ID, l.Score, c.MaxScore)
				}
			}
		}
	}

	if math.Abs(weights-100) > WeightTolerance {
		return fmt.Errorf("%w: section weights sum to %.2f, expected 100", ErrInvalidRubric, weights)
	}
	return nil
}

// NormalizeRubric fills derived fields: criterion section ids and the total score
func NormalizeRubric(r *models.Rubric) {
	for i := range r.Sections {
		for j := range r.Sections[i].Criteria {
			r.Sections[i].Criteria[j].SectionID = r.Sections[i].ID
		}
	}
	r.TotalScore = r.ComputeTotalScore()
}
