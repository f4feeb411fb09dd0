package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"fp-innova/internal/models"
	"fp-innova/internal/repository"
	"fp-innova/pkg/validator"
)

// MasterStore is the persistence of one master data entity type
type MasterStore[T any] interface {
	Create(ctx context.Context, item *T) error
	GetByID(ctx context.Context, id uint) (*T, error)
	List(ctx context.Context, filter models.MasterDataFilter) ([]T, error)
	Update(ctx context.Context, id uint, item *T) error
	SetActive(ctx context.Context, id uint, active bool) error
	Delete(ctx context.Context, id uint) error
	CodeExists(ctx context.Context, code string, excludeID uint) (bool, error)
}

// entityDef describes how the generic operations reach into one entity type
type entityDef[T any] struct {
	resource  string
	code      func(*T) string
	id        func(*T) uint
	active    func(*T) bool
	prepare   func(item *T, id uint, active bool) // sets id and active, sanitizes
	checkRefs func(ctx context.Context, item *T) error
	fromRow   func(row map[string]string) (*T, *models.ImportError)
}

// MasterEntity offers CRUD, soft delete and CSV import for one entity type
type MasterEntity[T any] struct {
	store MasterStore[T]
	def   entityDef[T]
	audit *AuditService
}

// List returns the entities matching filter
func (e *MasterEntity[T]) List(ctx context.Context, filter models.MasterDataFilter) ([]T, error) {
	return e.store.List(ctx, filter)
}

// Get returns one entity
func (e *MasterEntity[T]) Get(ctx context.Context, id uint) (*T, error) {
	return e.store.GetByID(ctx, id)
}

func (e *MasterEntity[T]) validate(ctx context.Context, item *T, excludeID uint) error {
	if err := validator.ValidateStruct(item); err != nil {
		return err
	}
	exists, err := e.store.CodeExists(ctx, e.def.code(item), excludeID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateCode
	}
	if e.def.checkRefs != nil {
		return e.def.checkRefs(ctx, item)
	}
	return nil
}

// Create validates and stores a new active entity
func (e *MasterEntity[T]) Create(ctx context.Context, actor *models.User, item *T) (*T, error) {
	e.def.prepare(item, 0, true)
	if err := e.validate(ctx, item, 0); err != nil {
		return nil, err
	}
	if err := e.store.Create(ctx, item); err != nil {
		return nil, mapMasterWriteError(err)
	}
	e.audit.Log(ctx, &actor.ID, AuditCreate, e.def.resource, idString(e.def.id(item)), "Created "+e.def.code(item), Diff(nil, item))
	return item, nil
}

// Update replaces the editable fields of entity id
func (e *MasterEntity[T]) Update(ctx context.Context, actor *models.User, id uint, item *T) (*T, error) {
	before, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.def.prepare(item, id, e.def.active(before))
	if err := e.validate(ctx, item, id); err != nil {
		return nil, err
	}
	if err := e.store.Update(ctx, id, item); err != nil {
		return nil, mapMasterWriteError(err)
	}
	e.audit.Log(ctx, &actor.ID, AuditUpdate, e.def.resource, idString(id), "Updated "+e.def.code(item), Diff(before, item))
	return item, nil
}

// Delete removes entity id, or deactivates it when other records still
// reference it. soft reports which one happened.
func (e *MasterEntity[T]) Delete(ctx context.Context, actor *models.User, id uint) (soft bool, err error) {
	before, err := e.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	err = e.store.Delete(ctx, id)
	switch {
	case err == nil:
		e.audit.Log(ctx, &actor.ID, AuditDelete, e.def.resource, idString(id), "Deleted "+e.def.code(before), Diff(before, nil))
		return false, nil
	case errors.Is(err, repository.ErrReferenced):
		if err := e.store.SetActive(ctx, id, false); err != nil {
			return false, err
		}
		e.audit.Log(ctx, &actor.ID, AuditDeactivate, e.def.resource, idString(id),
			"Deactivated referenced "+e.def.code(before), models.FieldChanges{"active": {Old: true, New: false}})
		return true, nil
	default:
		return false, err
	}
}

// SetActive reactivates or deactivates entity id
func (e *MasterEntity[T]) SetActive(ctx context.Context, actor *models.User, id uint, active bool) error {
	if err := e.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	e.audit.Log(ctx, &actor.ID, AuditUpdate, e.def.resource, idString(id), fmt.Sprintf("Set active=%t", active),
		models.FieldChanges{"active": {Old: !active, New: active}})
	return nil
}

// Import reads a CSV whose header row names the JSON fields of the entity.
// Each row is validated on its own and valid rows are stored.
func (e *MasterEntity[T]) Import(ctx context.Context, actor *models.User, r io.Reader) (*models.ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fieldError("file", "el fichero CSV no tiene cabecera")
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	result := &models.ImportResult{Errors: []models.ImportError{}}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		result.TotalRows++
		if err != nil {
			result.Errors = append(result.Errors, models.ImportError{Row: line, Field: "", Message: err.Error()})
			continue
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			}
		}
		item, rowErr := e.def.fromRow(row)
		if rowErr != nil {
			rowErr.Row = line
			result.Errors = append(result.Errors, *rowErr)
			continue
		}
		if _, err := e.Create(ctx, actor, item); err != nil {
			result.Errors = append(result.Errors, importErrors(line, err)...)
			continue
		}
		result.SuccessCount++
	}

	result.ErrorCount = len(result.Errors)
	result.Success = result.ErrorCount == 0
	slog.Info("Master data imported", "resource", e.def.resource, "rows", result.TotalRows,
		"imported", result.SuccessCount, "errors", result.ErrorCount)
	return result, nil
}

func importErrors(row int, err error) []models.ImportError {
	var verrs validator.Errors
	if errors.As(err, &verrs) {
		out := make([]models.ImportError, 0, len(verrs))
		for field, msg := range verrs {
			out = append(out, models.ImportError{Row: row, Field: field, Message: msg})
		}
		return out
	}
	if errors.Is(err, ErrDuplicateCode) {
		return []models.ImportError{{Row: row, Field: "code", Message: "el código ya existe"}}
	}
	return []models.ImportError{{Row: row, Message: err.Error()}}
}

func mapMasterWriteError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return ErrDuplicateCode
	case errors.Is(err, repository.ErrInvalidRef):
		return fieldError("reference", "la entidad relacionada no existe")
	}
	return err
}

// MasterDataService groups the master data entities
type MasterDataService struct {
	Centers     *MasterEntity[models.Center]
	Families    *MasterEntity[models.ProfessionalFamily]
	Cycles      *MasterEntity[models.Cycle]
	Courses     *MasterEntity[models.Course]
	Departments *MasterEntity[models.Department]
}

// NewMasterDataService wires the entity stores
func NewMasterDataService(
	centers MasterStore[models.Center],
	families MasterStore[models.ProfessionalFamily],
	cycles MasterStore[models.Cycle],
	courses MasterStore[models.Course],
	departments MasterStore[models.Department],
	users UserStore,
	audit *AuditService,
) *MasterDataService {
	exists := func(ctx context.Context, field string, lookup func() error) error {
		if err := lookup(); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fieldError(field, field+" no existe")
			}
			return err
		}
		return nil
	}

	return &MasterDataService{
		Centers: &MasterEntity[models.Center]{store: centers, audit: audit, def: entityDef[models.Center]{
			resource: models.MasterCenters,
			code:     func(c *models.Center) string { return c.Code },
			id:       func(c *models.Center) uint { return c.ID },
			active:   func(c *models.Center) bool { return c.Active },
			prepare: func(c *models.Center, id uint, active bool) {
				c.ID = id
				c.Active = active
				c.Code = validator.SanitizeString(c.Code)
				c.Name = validator.SanitizeString(c.Name)
				c.Email = validator.SanitizeEmail(c.Email)
			},
			fromRow: func(row map[string]string) (*models.Center, *models.ImportError) {
				return &models.Center{
					Code: row["code"], Name: row["name"], Address: row["address"], City: row["city"],
					Province: row["province"], Phone: row["phone"], Email: row["email"],
				}, nil
			},
		}},

		Families: &MasterEntity[models.ProfessionalFamily]{store: families, audit: audit, def: entityDef[models.ProfessionalFamily]{
			resource: models.MasterFamilies,
			code:     func(f *models.ProfessionalFamily) string { return f.Code },
			id:       func(f *models.ProfessionalFamily) uint { return f.ID },
			active:   func(f *models.ProfessionalFamily) bool { return f.Active },
			prepare: func(f *models.ProfessionalFamily, id uint, active bool) {
				f.ID = id
				f.Active = active
				f.Code = validator.SanitizeString(f.Code)
				f.Name = validator.SanitizeString(f.Name)
			},
			fromRow: func(row map[string]string) (*models.ProfessionalFamily, *models.ImportError) {
				return &models.ProfessionalFamily{Code: row["code"], Name: row["name"], Description: row["description"]}, nil
			},
		}},

		Cycles: &MasterEntity[models.Cycle]{store: cycles, audit: audit, def: entityDef[models.Cycle]{
			resource: models.MasterCycles,
			code:     func(c *models.Cycle) string { return c.Code },
			id:       func(c *models.Cycle) uint { return c.ID },
			active:   func(c *models.Cycle) bool { return c.Active },
			prepare: func(c *models.Cycle, id uint, active bool) {
				c.ID = id
				c.Active = active
				c.Code = validator.SanitizeString(c.Code)
				c.Name = validator.SanitizeString(c.Name)
			},
			checkRefs: func(ctx context.Context, c *models.Cycle) error {
				return exists(ctx, "familyId", func() error { _, err := families.GetByID(ctx, c.FamilyID); return err })
			},
			fromRow: func(row map[string]string) (*models.Cycle, *models.ImportError) {
				familyID, err := parseUintField(row, "familyId")
				if err != nil {
					return nil, err
				}
				duration, err := parseIntField(row, "duration")
				if err != nil {
					return nil, err
				}
				return &models.Cycle{
					Code: row["code"], Name: row["name"], FamilyID: familyID, Level: row["level"],
					Duration: duration, Description: row["description"],
				}, nil
			},
		}},

		Courses: &MasterEntity[models.Course]{store: courses, audit: audit, def: entityDef[models.Course]{
			resource: models.MasterCourses,
			code:     func(c *models.Course) string { return c.Code },
			id:       func(c *models.Course) uint { return c.ID },
			active:   func(c *models.Course) bool { return c.Active },
			prepare: func(c *models.Course, id uint, active bool) {
				c.ID = id
				c.Active = active
				c.Code = validator.SanitizeString(c.Code)
				c.Name = validator.SanitizeString(c.Name)
			},
			checkRefs: func(ctx context.Context, c *models.Course) error {
				return exists(ctx, "cycleId", func() error { _, err := cycles.GetByID(ctx, c.CycleID); return err })
			},
			fromRow: func(row map[string]string) (*models.Course, *models.ImportError) {
				cycleID, err := parseUintField(row, "cycleId")
				if err != nil {
					return nil, err
				}
				year, err := parseIntField(row, "year")
				if err != nil {
					return nil, err
				}
				return &models.Course{Code: row["code"], Name: row["name"], CycleID: cycleID, Year: year}, nil
			},
		}},

		Departments: &MasterEntity[models.Department]{store: departments, audit: audit, def: entityDef[models.Department]{
			resource: models.MasterDepartments,
			code:     func(d *models.Department) string { return d.Code },
			id:       func(d *models.Department) uint { return d.ID },
			active:   func(d *models.Department) bool { return d.Active },
			prepare: func(d *models.Department, id uint, active bool) {
				d.ID = id
				d.Active = active
				d.Code = validator.SanitizeString(d.Code)
				d.Name = validator.SanitizeString(d.Name)
				d.Email = validator.SanitizeEmail(d.Email)
			},
			checkRefs: func(ctx context.Context, d *models.Department) error {
				if err := exists(ctx, "familyId", func() error { _, err := families.GetByID(ctx, d.FamilyID); return err }); err != nil {
					return err
				}
				if err := exists(ctx, "centerId", func() error { _, err := centers.GetByID(ctx, d.CenterID); return err }); err != nil {
					return err
				}
				if d.HeadUserID != nil {
					return exists(ctx, "head", func() error { _, err := users.GetByID(ctx, *d.HeadUserID); return err })
				}
				return nil
			},
			fromRow: func(row map[string]string) (*models.Department, *models.ImportError) {
				familyID, err := parseUintField(row, "familyId")
				if err != nil {
					return nil, err
				}
				centerID, err := parseUintField(row, "centerId")
				if err != nil {
					return nil, err
				}
				return &models.Department{
					Code: row["code"], Name: row["name"], Description: row["description"],
					FamilyID: familyID, CenterID: centerID, Email: row["email"], Phone: row["phone"],
				}, nil
			},
		}},
	}
}

func parseUintField(row map[string]string, field string) (uint, *models.ImportError) {
	v, err := strconv.ParseUint(row[field], 10, 64)
	if err != nil {
		return 0, &models.ImportError{Field: field, Message: field + " debe ser un identificador numérico"}
	}
	return uint(v), nil
}

func parseIntField(row map[string]string, field string) (int, *models.ImportError) {
	if row[field] == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(row[field])
	if err != nil {
		return 0, &models.ImportError{Field: field, Message: field + " debe ser un número entero"}
	}
	return v, nil
}
