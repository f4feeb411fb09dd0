package service

import (
	"context"
	"errors"
	"testing"

	"fp-innova/internal/models"
	"fp-innova/internal/repository"
	"fp-innova/pkg/validator"
)

type reviewFixture struct {
	svc      *ReviewService
	projects *fakeProjects
	reviews  *fakeReviews
	settings *fakeReviewSettings
	notifier *fakeNotifier
	project  *models.Project
}

func newReviewFixture(t *testing.T, status models.ProjectStatus, reviewers ...uint) *reviewFixture {
	t.Helper()
	f := &reviewFixture{
		projects: newFakeProjects(),
		reviews:  newFakeReviews(),
		settings: &fakeReviewSettings{},
		notifier: &fakeNotifier{},
	}
	p := &models.Project{
		ConvocatoriaID: 1,
		CategoryID:     10,
		Category:       models.CategorySnapshot(testRubricCategory(10, 1)),
		Title:          "Aula de realidad aumentada",
		Status:         status,
		Presenters:     []uint{1},
	}
	for _, id := range reviewers {
		p.Reviewers = append(p.Reviewers, models.ProjectReviewer{UserID: id})
	}
	f.project = f.projects.put(p)
	f.svc = NewReviewService(fakeTx{}, f.projects, f.reviews, f.settings, testPolicy, f.notifier, newTestAudit())
	return f
}

func fullScores(v float64) map[string]float64 {
	return map[string]float64{"c1": v, "c2": v, "c3": v, "c4": v}
}

func (f *reviewFixture) status(t *testing.T) models.ProjectStatus {
	t.Helper()
	p, err := f.projects.GetByID(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return p.Status
}

func TestSaveReviewDrivesStatus(t *testing.T) {
	f := newReviewFixture(t, models.ProjectReviewing, 7, 8)
	ctx := context.Background()

	if _, err := f.svc.SaveReview(ctx, testUser(7, models.RoleReviewer), f.project.ID,
		SaveReviewRequest{Scores: map[string]float64{"c1": 6}, IsDraft: true}); err != nil {
		t.Fatalf("draft save failed: %v", err)
	}
	if got := f.status(t); got != models.ProjectReviewing {
		t.Errorf("after draft: status = %s, want reviewing", got)
	}

	first, err := f.svc.SaveReview(ctx, testUser(7, models.RoleReviewer), f.project.ID, SaveReviewRequest{Scores: fullScores(8)})
	if err != nil {
		t.Fatalf("final save failed: %v", err)
	}
	if first.Score != 8 || first.FinalizedAt == nil {
		t.Errorf("score = %v finalizedAt = %v", first.Score, first.FinalizedAt)
	}
	if got := f.status(t); got != models.ProjectReviewing {
		t.Errorf("after one of two reviews: status = %s, want reviewing", got)
	}

	if _, err := f.svc.SaveReview(ctx, testUser(8, models.RoleReviewer), f.project.ID, SaveReviewRequest{Scores: fullScores(6)}); err != nil {
		t.Fatalf("second final save failed: %v", err)
	}
	if got := f.status(t); got != models.ProjectReviewed {
		t.Errorf("after two reviews: status = %s, want reviewed", got)
	}

	p, _ := f.projects.GetByID(ctx, f.project.ID)
	if p.Score == nil || *p.Score != 7 {
		t.Errorf("project score = %v, want 7", p.Score)
	}
	r, _ := p.Reviewer(7)
	if !r.HasReviewed {
		t.Error("reviewer 7 should be marked as reviewed")
	}
	if got := f.notifier.ofKind(models.NotificationProjectStatus); len(got) != 1 {
		t.Errorf("expected one status notification, got %d", len(got))
	}
}

func TestFinalizedReviewIsImmutable(t *testing.T) {
	f := newReviewFixture(t, models.ProjectReviewing, 7, 8)
	ctx := context.Background()
	reviewer := testUser(7, models.RoleReviewer)

	if _, err := f.svc.SaveReview(ctx, reviewer, f.project.ID, SaveReviewRequest{Scores: fullScores(9)}); err != nil {
		t.Fatalf("final save failed: %v", err)
	}
	_, err := f.svc.SaveReview(ctx, reviewer, f.project.ID, SaveReviewRequest{Scores: fullScores(2), IsDraft: true})
	if !errors.Is(err, ErrReviewFinalized) {
		t.Fatalf("expected ErrReviewFinalized, got %v", err)
	}
}

func TestSaveReviewValidation(t *testing.T) {
	f := newReviewFixture(t, models.ProjectReviewing, 7)
	reviewer := testUser(7, models.RoleReviewer)

	tests := []struct {
		name string
		req  SaveReviewRequest
	}{
		{"unknown criterion", SaveReviewRequest{Scores: map[string]float64{"zz": 5}, IsDraft: true}},
		{"score above max", SaveReviewRequest{Scores: map[string]float64{"c1": 11}, IsDraft: true}},
		{"negative score", SaveReviewRequest{Scores: map[string]float64{"c1": -1}, IsDraft: true}},
		{"final with missing criteria", SaveReviewRequest{Scores: map[string]float64{"c1": 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SaveReview(context.Background(), reviewer, f.project.ID, tt.req)
			var verr validator.Errors
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSaveReviewAccess(t *testing.T) {
	tests := []struct {
		name     string
		actor    *models.User
		settings models.ReviewSettings
		wantErr  error
	}{
		{"unassigned reviewer", testUser(9, models.RoleReviewer), models.ReviewSettings{}, ErrForbidden},
		{"presenter", testUser(1, models.RolePresenter), models.ReviewSettings{}, ErrForbidden},
		{"admin without setting", testUser(100, models.RoleAdmin), models.ReviewSettings{}, ErrForbidden},
		{"admin with setting", testUser(100, models.RoleAdmin), models.ReviewSettings{AllowAdminReview: true}, nil},
		{"coordinator with setting", testUser(3, models.RoleCoordinator), models.ReviewSettings{AllowCoordinatorReview: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReviewFixture(t, models.ProjectSubmitted, 7)
			f.settings.reviews = tt.settings
			_, err := f.svc.SaveReview(context.Background(), tt.actor, f.project.ID, SaveReviewRequest{Scores: fullScores(5)})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			p, _ := f.projects.GetByID(context.Background(), f.project.ID)
			r, ok := p.Reviewer(tt.actor.ID)
			if !ok || !r.HasReviewed {
				t.Errorf("manager should be recorded as a reviewer with hasReviewed")
			}
		})
	}
}

func TestSaveReviewDuringNeedsChanges(t *testing.T) {
	f := newReviewFixture(t, models.ProjectNeedsChanges, 7)
	reviewer := testUser(7, models.RoleReviewer)
	ctx := context.Background()

	if _, err := f.svc.SaveReview(ctx, reviewer, f.project.ID, SaveReviewRequest{Scores: fullScores(5), IsDraft: true}); err != nil {
		t.Fatalf("draft save during needs_changes failed: %v", err)
	}
	if got := f.status(t); got != models.ProjectNeedsChanges {
		t.Errorf("status = %s, want needs_changes", got)
	}
	if _, err := f.svc.SaveReview(ctx, reviewer, f.project.ID, SaveReviewRequest{Scores: fullScores(5)}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("final save during needs_changes: expected ErrInvalidTransition, got %v", err)
	}
}

func TestDeleteReviewRecomputes(t *testing.T) {
	f := newReviewFixture(t, models.ProjectReviewing, 7, 8)
	ctx := context.Background()

	var last *models.Review
	for _, id := range []uint{7, 8} {
		r, err := f.svc.SaveReview(ctx, testUser(id, models.RoleReviewer), f.project.ID, SaveReviewRequest{Scores: fullScores(float64(id))})
		if err != nil {
			t.Fatalf("save by %d failed: %v", id, err)
		}
		last = r
	}
	if got := f.status(t); got != models.ProjectReviewed {
		t.Fatalf("status = %s, want reviewed", got)
	}

	if err := f.svc.DeleteReview(ctx, testUser(3, models.RoleCoordinator), last.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("coordinator delete: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.DeleteReview(ctx, testUser(100, models.RoleAdmin), last.ID); err != nil {
		t.Fatalf("DeleteReview failed: %v", err)
	}
	if got := f.status(t); got != models.ProjectReviewing {
		t.Errorf("after delete: status = %s, want reviewing", got)
	}
	p, _ := f.projects.GetByID(ctx, f.project.ID)
	if p.Score == nil || *p.Score != 7 {
		t.Errorf("score = %v, want 7", p.Score)
	}
	if r, _ := p.Reviewer(8); r.HasReviewed {
		t.Error("hasReviewed should be cleared")
	}

	completion, err := f.svc.GetCompletionStatus(ctx, testUser(100, models.RoleAdmin), f.project.ID)
	if err != nil {
		t.Fatalf("GetCompletionStatus failed: %v", err)
	}
	if completion.CompletedReviews != 1 || completion.MinCorrections != 2 || completion.Complete {
		t.Errorf("unexpected completion: %+v", completion)
	}
}

func TestDraftReviewsHiddenFromOthers(t *testing.T) {
	f := newReviewFixture(t, models.ProjectReviewing, 7, 8)
	ctx := context.Background()

	if _, err := f.svc.SaveReview(ctx, testUser(7, models.RoleReviewer), f.project.ID,
		SaveReviewRequest{Scores: map[string]float64{"c1": 3}, IsDraft: true}); err != nil {
		t.Fatalf("draft save failed: %v", err)
	}

	for _, tc := range []struct {
		actor *models.User
		want  int
	}{
		{testUser(7, models.RoleReviewer), 1},
		{testUser(8, models.RoleReviewer), 0},
		{testUser(1, models.RolePresenter), 0},
		{testUser(3, models.RoleCoordinator), 1},
	} {
		got, err := f.svc.ListByProject(ctx, tc.actor, f.project.ID)
		if err != nil {
			t.Fatalf("ListByProject as %d failed: %v", tc.actor.ID, err)
		}
		if len(got) != tc.want {
			t.Errorf("user %d sees %d reviews, want %d", tc.actor.ID, len(got), tc.want)
		}
	}

	if _, err := f.svc.ListByProject(ctx, testUser(9, models.RolePresenter), f.project.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("foreign presenter: expected ErrNotFound, got %v", err)
	}
}
