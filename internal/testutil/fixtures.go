package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"fp-innova/internal/models"
	"fp-innova/internal/repository"
)

// FixturePassword is the password of every fixture user
const FixturePassword = "Password123!"

// Fixtures holds test data
type Fixtures struct {
	DB           *sqlx.DB
	Admin        *models.User
	Coordinator  *models.User
	Presenter    *models.User
	Reviewer     *models.User
	Guest        *models.User
	Center       *models.Center
	Family       *models.ProfessionalFamily
	Department   *models.Department
	Convocatoria *models.Convocatoria
	Category     models.Category
}

// SetupFixtures creates one user per role, the master data they reference and
// an active convocatoria whose submission phase contains now
func SetupFixtures(t *testing.T, db *sqlx.DB) *Fixtures {
	t.Helper()
	ctx := context.Background()
	f := &Fixtures{DB: db}

	f.Center = &models.Center{Code: "C001", Name: "CIFP Test", City: "Madrid", Active: true}
	if err := repository.NewCenterRepository(db).Create(ctx, f.Center); err != nil {
		t.Fatalf("Failed to create center: %v", err)
	}
	f.Family = &models.ProfessionalFamily{Code: "INF", Name: "Informática y Comunicaciones", Active: true}
	if err := repository.NewFamilyRepository(db).Create(ctx, f.Family); err != nil {
		t.Fatalf("Failed to create family: %v", err)
	}
	f.Department = &models.Department{Code: "D-INF", Name: "Informática", FamilyID: f.Family.ID, CenterID: f.Center.ID, Active: true}
	if err := repository.NewDepartmentRepository(db).Create(ctx, f.Department); err != nil {
		t.Fatalf("Failed to create department: %v", err)
	}

	f.Admin = CreateUser(t, db, "admin@test.com", "Admin User", models.RoleAdmin, nil)
	f.Coordinator = CreateUser(t, db, "coordinator@test.com", "Coordinator User", models.RoleCoordinator, &f.Center.ID)
	f.Presenter = CreateUser(t, db, "presenter@test.com", "Presenter User", models.RolePresenter, &f.Center.ID)
	f.Reviewer = CreateUser(t, db, "reviewer@test.com", "Reviewer User", models.RoleReviewer, nil)
	f.Guest = CreateUser(t, db, "guest@test.com", "Guest User", models.RoleGuest, nil)

	now := time.Now().UTC()
	f.Convocatoria = &models.Convocatoria{
		Title:                "Convocatoria de prueba",
		Year:                 now.Year(),
		Status:               models.ConvocatoriaActive,
		MaxProjectsPerCenter: 2,
		Phases: models.Phases{
			Submission:         models.DateRange{Start: now.Add(-24 * time.Hour), End: now.Add(7 * 24 * time.Hour)},
			FirstReview:        models.DateRange{Start: now.Add(8 * 24 * time.Hour), End: now.Add(20 * 24 * time.Hour)},
			Corrections:        models.DateRange{Start: now.Add(21 * 24 * time.Hour), End: now.Add(30 * 24 * time.Hour)},
			ResultsPublication: now.Add(40 * 24 * time.Hour),
		},
		Categories: []models.Category{TestCategory()},
		CreatedBy:  &f.Admin.ID,
	}
	if err := repository.NewConvocatoriaRepository(db).Create(ctx, f.Convocatoria); err != nil {
		t.Fatalf("Failed to create convocatoria: %v", err)
	}
	f.Category = f.Convocatoria.Categories[0]

	return f
}

// CreateUser inserts an active user with FixturePassword
func CreateUser(t *testing.T, db *sqlx.DB, email, name, role string, centerID *uint) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(FixturePassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CenterID:     centerID,
		Active:       true,
	}
	if err := repository.NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

// TestCategory returns a category with a two-section rubric whose weights sum to 100
func TestCategory() models.Category {
	return models.Category{
		Name:           "Innovación tecnológica",
		MinCorrections: 2,
		Requirements:   models.StringList{"Memoria técnica"},
		CutoffScore:    5,
		TotalBudget:    10000,
		Rubric: models.Rubric{
			ID: "rubric-1",
			Sections: []models.RubricSection{
				{
					ID: "s1", Name: "Calidad", Weight: 60,
					Criteria: []models.RubricCriterion{
						{ID: "c1", Name: "Originalidad", MaxScore: 10, SectionID: "s1"},
						{ID: "c2", Name: "Viabilidad", MaxScore: 10, SectionID: "s1"},
					},
				},
				{
					ID: "s2", Name: "Impacto", Weight: 40,
					Criteria: []models.RubricCriterion{
						{ID: "c3", Name: "Alcance", MaxScore: 10, SectionID: "s2"},
					},
				},
			},
			TotalScore: 30,
		},
	}
}
