package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fp-innova/internal/models"
	"fp-innova/pkg/validator"
)

func newConvocatoriaFixture(status string) (*ConvocatoriaService, *fakeConvocatorias, *models.Convocatoria) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := testConvocatoria(now)
	c.Status = status
	c.Phases.ResultsPublication = now.Add(30 * 24 * time.Hour)
	repo := newFakeConvocatorias(c)
	return NewConvocatoriaService(fakeTx{}, repo, newTestAudit()), repo, c
}

func TestConvocatoriaCreateStartsAsDraft(t *testing.T) {
	svc, repo, tmpl := newConvocatoriaFixture(models.ConvocatoriaActive)
	admin := testUser(1, models.RoleAdmin)

	c := *tmpl
	c.ID = 0
	c.Title = "  Convocatoria 2027  "
	c.Categories = []models.Category{testRubricCategory(0, 0)}
	c.Categories[0].Rubric.TotalScore = 0

	created, err := svc.Create(context.Background(), admin, &c)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Status != models.ConvocatoriaDraft {
		t.Errorf("Expected status %s, got %s", models.ConvocatoriaDraft, created.Status)
	}
	if created.Title != "Convocatoria 2027" {
		t.Errorf("Expected trimmed title, got %q", created.Title)
	}
	if created.CreatedBy == nil || *created.CreatedBy != admin.ID {
		t.Errorf("Expected createdBy %d, got %v", admin.ID, created.CreatedBy)
	}
	if got := created.Categories[0].Rubric.TotalScore; got != 40 {
		t.Errorf("Expected rubric total score 40, got %v", got)
	}
	if got := created.Categories[0].Rubric.Sections[1].Criteria[0].SectionID; got != "s2" {
		t.Errorf("Expected criterion section id s2, got %q", got)
	}
	if _, err := repo.GetByID(context.Background(), created.ID); err != nil {
		t.Errorf("Created convocatoria not stored: %v", err)
	}
}

func TestConvocatoriaCreateRejectsBadRubric(t *testing.T) {
	svc, _, tmpl := newConvocatoriaFixture(models.ConvocatoriaActive)

	c := *tmpl
	c.Categories = []models.Category{testRubricCategory(0, 0)}
	c.Categories[0].Rubric.Sections[0].Weight = 50

	_, err := svc.Create(context.Background(), testUser(1, models.RoleAdmin), &c)
	var verr validator.Errors
	if !errors.As(err, &verr) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if _, ok := verr["categories[0].rubric"]; !ok {
		t.Errorf("Expected error on categories[0].rubric, got %v", verr)
	}
}

func TestConvocatoriaChangeStatus(t *testing.T) {
	tests := []struct {
		name         string
		from         string
		to           string
		noCategories bool
		wantErr      error
	}{
		{"open draft", models.ConvocatoriaDraft, models.ConvocatoriaActive, false, nil},
		{"close active", models.ConvocatoriaActive, models.ConvocatoriaClosed, false, nil},
		{"reopen closed", models.ConvocatoriaClosed, models.ConvocatoriaActive, false, nil},
		{"archive closed", models.ConvocatoriaClosed, models.ConvocatoriaArchived, false, nil},
		{"skip to closed", models.ConvocatoriaDraft, models.ConvocatoriaClosed, false, ErrInvalidTransition},
		{"archived is final", models.ConvocatoriaArchived, models.ConvocatoriaActive, false, ErrInvalidTransition},
		{"back to draft", models.ConvocatoriaActive, models.ConvocatoriaDraft, false, ErrInvalidTransition},
		{"open without categories", models.ConvocatoriaDraft, models.ConvocatoriaActive, true, ErrPreconditionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, c := newConvocatoriaFixture(tt.from)
			if tt.noCategories {
				c.Categories = nil
			}

			got, err := svc.ChangeStatus(context.Background(), testUser(1, models.RoleAdmin), c.ID, tt.to)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if stored, _ := repo.GetByID(context.Background(), c.ID); stored.Status != tt.from {
					t.Errorf("Status changed to %s on a rejected transition", stored.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChangeStatus failed: %v", err)
			}
			if got.Status != tt.to {
				t.Errorf("Expected status %s, got %s", tt.to, got.Status)
			}
		})
	}
}

func TestConvocatoriaListHidesDrafts(t *testing.T) {
	svc, repo, _ := newConvocatoriaFixture(models.ConvocatoriaActive)
	repo.convs[2] = &models.Convocatoria{ID: 2, Title: "Borrador", Status: models.ConvocatoriaDraft}
	repo.convs[3] = &models.Convocatoria{ID: 3, Title: "Archivada", Status: models.ConvocatoriaArchived}

	visible, err := svc.List(context.Background(), "", false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != 1 {
		t.Errorf("Expected only the active convocatoria, got %+v", visible)
	}

	all, err := svc.List(context.Background(), "", true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 convocatorias with drafts, got %d", len(all))
	}
}
