package models

import "time"

// Convocatoria statuses
const (
	ConvocatoriaDraft    = "draft"
	ConvocatoriaActive   = "active"
	ConvocatoriaClosed   = "closed"
	ConvocatoriaArchived = "archived"
)

// DateRange is an inclusive phase window
type DateRange struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtefield=Start"`
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Phases are the scheduled phases of a convocatoria
type Phases struct {
	Submission         DateRange `json:"submission" validate:"required"`
	FirstReview        DateRange `json:"firstReview" validate:"required"`
	Corrections        DateRange `json:"corrections" validate:"required"`
	ResultsPublication time.Time `json:"resultsPublication" validate:"required"`
}

// Convocatoria is a grant call
type Convocatoria struct {
	ID                   uint       `json:"id"`
	Title                string     `json:"title" validate:"required,notblank,max=255"`
	Description          string     `json:"description"`
	Year                 int        `json:"year" validate:"required,min=2000,max=2100"`
	Status               string     `json:"status" validate:"omitempty,oneof=draft active closed archived"`
	MaxProjectsPerCenter int        `json:"maxProjectsPerCenter" validate:"required,min=1"`
	Phases               Phases     `json:"phases" validate:"required"`
	Categories           []Category `json:"categories" validate:"dive"`
	CreatedBy            *uint      `json:"createdBy,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Category belongs to one convocatoria and carries the scoring rubric
type Category struct {
	ID              uint       `json:"id" db:"id"`
	ConvocatoriaID  uint       `json:"convocatoriaId" db:"convocatoria_id"`
	Position        int        `json:"position" db:"position"`
	Name            string     `json:"name" db:"name" validate:"required,notblank,max=255"`
	Description     string     `json:"description" db:"description"`
	MaxParticipants int        `json:"maxParticipants" db:"max_participants" validate:"gte=0"`
	MinCorrections  int        `json:"minCorrections" db:"min_corrections" validate:"required,min=1"`
	Requirements    StringList `json:"requirements" db:"requirements"`
	CutoffScore     float64    `json:"cutoffScore" db:"cutoff_score" validate:"gte=0,lte=10"`
	TotalBudget     float64    `json:"totalBudget" db:"total_budget" validate:"gt=0"`
	Rubric          Rubric     `json:"rubric" db:"rubric"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// Rubric is an ordered list of weighted sections
type Rubric struct {
	ID         string          `json:"id"`
	Sections   []RubricSection `json:"sections" validate:"required,min=1,dive"`
	TotalScore float64         `json:"totalScore"`
}

// RubricSection groups criteria under a percentage weight
type RubricSection struct {
	ID          string            `json:"id" validate:"required"`
	Name        string            `json:"name" validate:"required,notblank"`
	Description string            `json:"description"`
	Weight      float64           `json:"weight" validate:"gte=0,lte=100"`
	Criteria    []RubricCriterion `json:"criteria" validate:"required,min=1,dive"`
}

// RubricCriterion is scored against discrete levels
type RubricCriterion struct {
	ID          string        `json:"id" validate:"required"`
	Name        string        `json:"name" validate:"required,notblank"`
	Description string        `json:"description"`
	MaxScore    float64       `json:"maxScore" validate:"gt=0,lte=10"`
	SectionID   string        `json:"sectionId"`
	Levels      []RubricLevel `json:"levels" validate:"dive"`
}

// RubricLevel is one selectable score with its descriptor
type RubricLevel struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score" validate:"gte=0"`
	Description string  `json:"description"`
}

// Criterion finds a criterion by id
func (r *Rubric) Criterion(id string) (*RubricCriterion, bool) {
	for i := range r.Sections {
		for j := range r.Sections[i].Criteria {
			if r.Sections[i].Criteria[j].ID == id {
				return &r.Sections[i].Criteria[j], true
			}
		}
	}
	return nil, false
}

// ComputeTotalScore sums the max score of every criterion
func (r *Rubric) ComputeTotalScore() float64 {
	var total float64
	for _, s := range r.Sections {
		for _, c := range s.Criteria {
			total += c.MaxScore
		}
	}
	return total
}
