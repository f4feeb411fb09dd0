package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fp-innova/internal/models"
	"fp-innova/internal/repository"
	"fp-innova/pkg/validator"
)

// fakeMasterStore keeps entities of one type in memory. referenced ids fail
// to delete with ErrReferenced.
type fakeMasterStore[T any] struct {
	items      map[uint]*T
	next       uint
	code       func(*T) string
	setID      func(*T, uint)
	setActive  func(*T, bool)
	referenced map[uint]bool
}

func newFakeMasterStore[T any](code func(*T) string, setID func(*T, uint), setActive func(*T, bool)) *fakeMasterStore[T] {
	return &fakeMasterStore[T]{items: map[uint]*T{}, code: code, setID: setID, setActive: setActive, referenced: map[uint]bool{}}
}

func (f *fakeMasterStore[T]) Create(_ context.Context, item *T) error {
	f.next++
	f.setID(item, f.next)
	c := *item
	f.items[f.next] = &c
	return nil
}

func (f *fakeMasterStore[T]) GetByID(_ context.Context, id uint) (*T, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *item
	return &c, nil
}

func (f *fakeMasterStore[T]) List(context.Context, models.MasterDataFilter) ([]T, error) {
	out := make([]T, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, *item)
	}
	return out, nil
}

func (f *fakeMasterStore[T]) Update(_ context.Context, id uint, item *T) error {
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	c := *item
	f.items[id] = &c
	return nil
}

func (f *fakeMasterStore[T]) SetActive(_ context.Context, id uint, active bool) error {
	item, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.setActive(item, active)
	return nil
}

func (f *fakeMasterStore[T]) Delete(_ context.Context, id uint) error {
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	if f.referenced[id] {
		return repository.ErrReferenced
	}
	delete(f.items, id)
	return nil
}

func (f *fakeMasterStore[T]) CodeExists(_ context.Context, code string, excludeID uint) (bool, error) {
	for id, item := range f.items {
		if id != excludeID && strings.EqualFold(f.code(item), code) {
			return true, nil
		}
	}
	return false, nil
}

type masterFixture struct {
	svc      *MasterDataService
	centers  *fakeMasterStore[models.Center]
	families *fakeMasterStore[models.ProfessionalFamily]
	admin    *models.User
}

func newMasterFixture(t *testing.T) *masterFixture {
	t.Helper()
	f := &masterFixture{
		centers: newFakeMasterStore(
			func(c *models.Center) string { return c.Code },
			func(c *models.Center, id uint) { c.ID = id },
			func(c *models.Center, a bool) { c.Active = a }),
		families: newFakeMasterStore(
			func(p *models.ProfessionalFamily) string { return p.Code },
			func(p *models.ProfessionalFamily, id uint) { p.ID = id },
			func(p *models.ProfessionalFamily, a bool) { p.Active = a }),
		admin: testUser(100, models.RoleAdmin),
	}
	cycles := newFakeMasterStore(
		func(c *models.Cycle) string { return c.Code },
		func(c *models.Cycle, id uint) { c.ID = id },
		func(c *models.Cycle, a bool) { c.Active = a })
	courses := newFakeMasterStore(
		func(c *models.Course) string { return c.Code },
		func(c *models.Course, id uint) { c.ID = id },
		func(c *models.Course, a bool) { c.Active = a })
	departments := newFakeMasterStore(
		func(d *models.Department) string { return d.Code },
		func(d *models.Department, id uint) { d.ID = id },
		func(d *models.Department, a bool) { d.Active = a })
	f.svc = NewMasterDataService(f.centers, f.families, cycles, courses, departments, newFakeUsers(), newTestAudit())
	return f
}

func TestMasterDataCreateAndDuplicateCode(t *testing.T) {
	f := newMasterFixture(t)
	ctx := context.Background()

	c, err := f.svc.Centers.Create(ctx, f.admin, &models.Center{Code: " IES01 ", Name: "IES Valle del Ebro", Email: "INFO@IES01.ES"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !c.Active || c.Code != "IES01" || c.Email != "info@ies01.es" {
		t.Errorf("center not prepared: %+v", c)
	}
	if _, err := f.svc.Centers.Create(ctx, f.admin, &models.Center{Code: "ies01", Name: "Otro"}); !errors.Is(err, ErrDuplicateCode) {
		t.Errorf("expected ErrDuplicateCode, got %v", err)
	}
	if _, err := f.svc.Centers.Update(ctx, f.admin, c.ID, &models.Center{Code: "IES01", Name: "Nombre nuevo"}); err != nil {
		t.Errorf("update keeping own code failed: %v", err)
	}
}

func TestMasterDataReferenceChecks(t *testing.T) {
	f := newMasterFixture(t)
	ctx := context.Background()

	_, err := f.svc.Cycles.Create(ctx, f.admin, &models.Cycle{Code: "DAM", Name: "Desarrollo de aplicaciones", FamilyID: 42, Level: models.CycleLevelHigher})
	var verr validator.Errors
	if !errors.As(err, &verr) || verr["familyId"] == "" {
		t.Fatalf("expected familyId error, got %v", err)
	}

	family, err := f.svc.Families.Create(ctx, f.admin, &models.ProfessionalFamily{Code: "IFC", Name: "Informática y comunicaciones"})
	if err != nil {
		t.Fatalf("Create family failed: %v", err)
	}
	if _, err := f.svc.Cycles.Create(ctx, f.admin, &models.Cycle{Code: "DAM", Name: "Desarrollo de aplicaciones",
		FamilyID: family.ID, Level: models.CycleLevelHigher, Duration: 2000}); err != nil {
		t.Errorf("Create cycle failed: %v", err)
	}
}

func TestMasterDataDeleteFallsBackToDeactivation(t *testing.T) {
	f := newMasterFixture(t)
	ctx := context.Background()

	free, _ := f.svc.Families.Create(ctx, f.admin, &models.ProfessionalFamily{Code: "HOT", Name: "Hostelería"})
	used, _ := f.svc.Families.Create(ctx, f.admin, &models.ProfessionalFamily{Code: "SAN", Name: "Sanidad"})
	f.families.referenced[used.ID] = true

	soft, err := f.svc.Families.Delete(ctx, f.admin, free.ID)
	if err != nil || soft {
		t.Errorf("unreferenced delete = soft %v, %v", soft, err)
	}
	if _, err := f.svc.Families.Get(ctx, free.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("family should be gone, got %v", err)
	}

	soft, err = f.svc.Families.Delete(ctx, f.admin, used.ID)
	if err != nil || !soft {
		t.Fatalf("referenced delete = soft %v, %v", soft, err)
	}
	got, err := f.svc.Families.Get(ctx, used.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Active {
		t.Error("referenced family should be deactivated")
	}
}

func TestMasterDataImport(t *testing.T) {
	f := newMasterFixture(t)
	csvData := "\ufeffcode,name,city,email\n" +
		"CIFP1,CIFP Los Enlaces,Zaragoza,info@enlaces.es\n" +
		"CIFP2,,Huesca,\n" +
		"CIFP1,Duplicado,Teruel,\n" +
		"CIFP3,CIFP Pirámide,Huesca,no-es-email\n" +
		"CIFP4,CIFP Corona de Aragón,Zaragoza,\n"

	result, err := f.svc.Centers.Import(context.Background(), f.admin, strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.TotalRows != 5 || result.SuccessCount != 2 || result.ErrorCount != 3 || result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
	rows := map[int]string{}
	for _, e := range result.Errors {
		rows[e.Row] = e.Field
	}
	want := map[int]string{3: "name", 4: "code", 5: "email"}
	for row, field := range want {
		if rows[row] != field {
			t.Errorf("row %d: error field = %q, want %q", row, rows[row], field)
		}
	}

	if _, err := f.svc.Centers.Import(context.Background(), f.admin, strings.NewReader("")); err == nil {
		t.Error("expected error for empty file")
	}
}
