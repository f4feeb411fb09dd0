package workflow

import (
	"errors"
	"testing"
	"time"

	"fp-innova/internal/models"
)

func TestReviewScore(t *testing.T) {
	tests := []struct {
		name   string
		scores map[string]float64
		want   float64
	}{
		{"empty", map[string]float64{}, 0},
		{"mean of three", map[string]float64{"a": 8, "b": 6, "c": 10}, 8.00},
		{"single", map[string]float64{"a": 7.5}, 7.5},
		{"rounds to two decimals", map[string]float64{"a": 7, "b": 8, "c": 8}, 7.67},
		{"rounds half up", map[string]float64{"a": 6.125, "b": 6.125}, 6.13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReviewScore(tt.scores); got != tt.want {
				t.Errorf("ReviewScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testRubric() *models.Rubric {
	return &models.Rubric{
		ID: "r1",
		Sections: []models.RubricSection{
			{ID: "s1", Name: "Innovation", Weight: 60, Criteria: []models.RubricCriterion{
				{ID: "c1", Name: "Novelty", MaxScore: 10},
				{ID: "c2", Name: "Impact", MaxScore: 10},
			}},
			{ID: "s2", Name: "Feasibility", Weight: 40, Criteria: []models.RubricCriterion{
				{ID: "c3", Name: "Budget", MaxScore: 5, Levels: []models.RubricLevel{
					{ID: "l1", Score: 0}, {ID: "l2", Score: 5},
				}},
			}},
		},
	}
}

func TestWeightedScore(t *testing.T) {
	r := testRubric()
	// s1: 15/20 = 0.75 * 60 = 45; s2: 5/5 = 1 * 40 = 40; 85/100 * 10
	got := WeightedScore(r, map[string]float64{"c1": 8, "c2": 7, "c3": 5})
	if got != 8.5 {
		t.Errorf("WeightedScore() = %v, want 8.5", got)
	}

	if got := WeightedScore(r, nil); got != 0 {
		t.Errorf("WeightedScore(nil) = %v, want 0", got)
	}
}

func TestValidateScores(t *testing.T) {
	r := testRubric()
	if err := ValidateScores(r, map[string]float64{"c1": 10, "c3": 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateScores(r, map[string]float64{"zz": 1}); !errors.Is(err, ErrUnknownCriterion) {
		t.Errorf("expected ErrUnknownCriterion, got %v", err)
	}
	if err := ValidateScores(r, map[string]float64{"c3": 6}); !errors.Is(err, ErrScoreOutOfRange) {
		t.Errorf("expected ErrScoreOutOfRange, got %v", err)
	}
	if err := ValidateScores(r, map[string]float64{"c1": -1}); !errors.Is(err, ErrScoreOutOfRange) {
		t.Errorf("expected ErrScoreOutOfRange, got %v", err)
	}
}

func TestProjectScore(t *testing.T) {
	if ProjectScore(nil) != nil {
		t.Error("expected nil score without final reviews")
	}
	got := ProjectScore([]float64{8, 7, 9.5})
	if got == nil {
		t.Fatal("expected a score")
	}
	if *got != 8.17 {
		t.Errorf("ProjectScore() = %v, want 8.17", *got)
	}
}

func TestValidateRubric(t *testing.T) {
	if err := ValidateRubric(testRubric()); err != nil {
		t.Fatalf("valid rubric rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *models.Rubric)
	}{
		{"weights below 100", func(r *models.Rubric) { r.Sections[0].Weight = 50 }},
		{"duplicate criterion", func(r *models.Rubric) { r.Sections[1].Criteria[0].ID = "c1" }},
		{"level above max", func(r *models.Rubric) { r.Sections[1].Criteria[0].Levels[1].Score = 6 }},
		{"duplicate section", func(r *models.Rubric) { r.Sections[1].ID = "s1" }},
		{"no sections", func(r *models.Rubric) { r.Sections = nil }},
		{"zero max score", func(r *models.Rubric) { r.Sections[0].Criteria[0].MaxScore = 0 }},
		{"negative max score", func(r *models.Rubric) { r.Sections[1].Criteria[0].MaxScore = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRubric()
			tt.mutate(r)
			if err := ValidateRubric(r); !errors.Is(err, ErrInvalidRubric) {
				t.Errorf("expected ErrInvalidRubric, got %v", err)
			}
		})
	}
}

func TestValidateRubricWeightTolerance(t *testing.T) {
	r := testRubric()
	r.Sections[0].Weight = 60.005
	if err := ValidateRubric(r); err != nil {
		t.Errorf("weight within tolerance rejected: %v", err)
	}
}

func TestNormalizeRubric(t *testing.T) {
	r := testRubric()
	NormalizeRubric(r)
	if r.TotalScore != 25 {
		t.Errorf("TotalScore = %v, want 25", r.TotalScore)
	}
	if r.Sections[1].Criteria[0].SectionID != "s2" {
		t.Errorf("SectionID = %q, want s2", r.Sections[1].Criteria[0].SectionID)
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.ProjectStatus
		event   Event
		cond    Conditions
		want    models.ProjectStatus
		wantErr error
	}{
		{"submit draft", models.ProjectDraft, EventSubmit, Conditions{}, models.ProjectSubmitted, nil},
		{"submit twice", models.ProjectSubmitted, EventSubmit, Conditions{}, models.ProjectSubmitted, ErrInvalidTransition},
		{"assign reviewers", models.ProjectSubmitted, EventAssignReviewers, Conditions{ReviewerCount: 2}, models.ProjectReviewing, nil},
		{"assign nobody", models.ProjectSubmitted, EventAssignReviewers, Conditions{}, models.ProjectSubmitted, ErrPreconditionFailed},
		{"first of two reviews", models.ProjectReviewing, EventReviewSaved, Conditions{CompletedReviews: 1, MinCorrections: 2}, models.ProjectReviewing, nil},
		{"threshold reached", models.ProjectReviewing, EventReviewSaved, Conditions{CompletedReviews: 2, MinCorrections: 2}, models.ProjectReviewed, nil},
		{"draft review on submitted", models.ProjectSubmitted, EventReviewSaved, Conditions{MinCorrections: 1}, models.ProjectReviewing, nil},
		{"review after reviewed", models.ProjectReviewed, EventReviewSaved, Conditions{CompletedReviews: 3, MinCorrections: 2}, models.ProjectReviewed, nil},
		{"review on draft", models.ProjectDraft, EventReviewSaved, Conditions{}, models.ProjectDraft, ErrInvalidTransition},
		{"request amendments", models.ProjectReviewing, EventRequestAmendments, Conditions{}, models.ProjectNeedsChanges, nil},
		{"amendments after final review", models.ProjectReviewing, EventRequestAmendments, Conditions{RequesterHasFinalReview: true}, models.ProjectReviewing, ErrPreconditionFailed},
		{"amendments on approved", models.ProjectApproved, EventRequestAmendments, Conditions{}, models.ProjectApproved, ErrInvalidTransition},
		{"amendments done with reviewers", models.ProjectNeedsChanges, EventAmendmentsCompleted, Conditions{ReviewerCount: 1}, models.ProjectReviewing, nil},
		{"amendments done without reviewers", models.ProjectNeedsChanges, EventAmendmentsCompleted, Conditions{}, models.ProjectSubmitted, nil},
		{"amendments expired with reviewers", models.ProjectNeedsChanges, EventAmendmentsExpired, Conditions{ReviewerCount: 2}, models.ProjectReviewing, nil},
		{"amendments expired without reviewers", models.ProjectNeedsChanges, EventAmendmentsExpired, Conditions{}, models.ProjectSubmitted, nil},
		{"amendments expired outside needs_changes", models.ProjectReviewing, EventAmendmentsExpired, Conditions{ReviewerCount: 1}, models.ProjectReviewing, ErrInvalidTransition},
		{"review deleted below threshold", models.ProjectReviewed, EventReviewDeleted, Conditions{ReviewerCount: 2, CompletedReviews: 1, MinCorrections: 2}, models.ProjectReviewing, nil},
		{"review deleted no reviewers", models.ProjectReviewing, EventReviewDeleted, Conditions{}, models.ProjectSubmitted, nil},
		{"reviewers cleared", models.ProjectReviewing, EventReviewersChanged, Conditions{}, models.ProjectSubmitted, nil},
		{"reviewers changed keeps complete review", models.ProjectReviewing, EventReviewersChanged, Conditions{ReviewerCount: 2, CompletedReviews: 2, MinCorrections: 2}, models.ProjectReviewed, nil},
		{"reviewers changed below threshold", models.ProjectReviewed, EventReviewersChanged, Conditions{ReviewerCount: 3, CompletedReviews: 2, MinCorrections: 3}, models.ProjectReviewing, nil},
		{"reviewers changed on draft", models.ProjectDraft, EventReviewersChanged, Conditions{ReviewerCount: 1}, models.ProjectDraft, ErrInvalidTransition},
		{"approve", models.ProjectReviewed, EventApprove, Conditions{ActorCanApprove: true, CompletedReviews: 2, MinCorrections: 2}, models.ProjectApproved, nil},
		{"approve without permission", models.ProjectReviewed, EventApprove, Conditions{CompletedReviews: 2, MinCorrections: 2}, models.ProjectReviewed, ErrPreconditionFailed},
		{"approve from reviewing", models.ProjectReviewing, EventApprove, Conditions{ActorCanApprove: true}, models.ProjectReviewing, ErrInvalidTransition},
		{"reject", models.ProjectReviewed, EventReject, Conditions{ActorCanApprove: true}, models.ProjectRejected, nil},
		{"reopen as admin", models.ProjectRejected, EventReopen, Conditions{ActorRole: models.RoleAdmin}, models.ProjectReviewed, nil},
		{"reopen as coordinator", models.ProjectApproved, EventReopen, Conditions{ActorRole: models.RoleCoordinator}, models.ProjectApproved, ErrPreconditionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.event, tt.cond)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Transition() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAmendmentStatusProgression(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(DefaultAmendmentPeriod)

	for n := 1; n <= 5; n++ {
		docs := make([]models.DocumentAmendment, n)
		for i := range docs {
			docs[i] = models.DocumentAmendment{Status: models.AmendmentPending, Deadline: deadline}
		}
		if got := AmendmentStatus(docs, now); got != models.AmendmentPending {
			t.Fatalf("n=%d: initial status = %s, want pending", n, got)
		}
		for done := 1; done <= n; done++ {
			docs[done-1].Status = models.AmendmentCompleted
			want := models.AmendmentInProgress
			if done == n {
				want = models.AmendmentCompleted
			}
			if got := AmendmentStatus(docs, now); got != want {
				t.Errorf("n=%d done=%d: status = %s, want %s", n, done, got, want)
			}
		}
	}
}

func TestAmendmentExpiryIsDerived(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &models.ProjectAmendment{
		Status: models.AmendmentInProgress,
		Documents: []models.DocumentAmendment{
			{Status: models.AmendmentCompleted, Deadline: now.Add(-time.Hour)},
			{Status: models.AmendmentPending, Deadline: now.Add(-time.Minute)},
		},
	}
	ApplyDerivedStatus(a, now)

	if a.Documents[0].Status != models.AmendmentCompleted {
		t.Errorf("completed entry became %s", a.Documents[0].Status)
	}
	if a.Documents[1].Status != models.AmendmentExpired {
		t.Errorf("overdue entry = %s, want expired", a.Documents[1].Status)
	}
	if a.Status != models.AmendmentExpired {
		t.Errorf("aggregate = %s, want expired", a.Status)
	}
}

func TestEarliestDeadline(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	docs := []models.DocumentAmendment{
		{Deadline: base.Add(48 * time.Hour)},
		{Deadline: base.Add(24 * time.Hour)},
		{Deadline: base.Add(72 * time.Hour)},
	}
	if got := EarliestDeadline(docs); !got.Equal(base.Add(24 * time.Hour)) {
		t.Errorf("EarliestDeadline() = %v", got)
	}
}
