package models

import "time"

// Master data entity types
const (
	MasterCenters     = "centers"
	MasterFamilies    = "families"
	MasterCycles      = "cycles"
	MasterCourses     = "courses"
	MasterDepartments = "departments"
)

// MasterDataTypes lists every master data entity type
var MasterDataTypes = []string{MasterCenters, MasterFamilies, MasterCycles, MasterCourses, MasterDepartments}

// Cycle levels
const (
	CycleLevelBasic  = "basic"
	CycleLevelMedium = "medium"
	CycleLevelHigher = "higher"
)

// Center is an educational center
type Center struct {
	ID        uint      `json:"id" db:"id"`
	Code      string    `json:"code" db:"code" validate:"required,notblank,max=50"`
	Name      string    `json:"name" db:"name" validate:"required,notblank,max=255"`
	Address   string    `json:"address" db:"address" validate:"max=255"`
	City      string    `json:"city" db:"city" validate:"max=100"`
	Province  string    `json:"province" db:"province" validate:"max=100"`
	Phone     string    `json:"phone" db:"phone" validate:"max=50"`
	Email     string    `json:"email" db:"email" validate:"omitempty,email"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ProfessionalFamily groups related vocational cycles
type ProfessionalFamily struct {
	ID          uint      `json:"id" db:"id"`
	Code        string    `json:"code" db:"code" validate:"required,notblank,max=50"`
	Name        string    `json:"name" db:"name" validate:"required,notblank,max=255"`
	Description string    `json:"description" db:"description"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Cycle is an educational cycle of a professional family
type Cycle struct {
	ID          uint      `json:"id" db:"id"`
	Code        string    `json:"code" db:"code" validate:"required,notblank,max=50"`
	Name        string    `json:"name" db:"name" validate:"required,notblank,max=255"`
	FamilyID    uint      `json:"familyId" db:"family_id" validate:"required"`
	Level       string    `json:"level" db:"level" validate:"required,oneof=basic medium higher"`
	Duration    int       `json:"duration" db:"duration" validate:"gte=0"`
	Description string    `json:"description" db:"description"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Course is one year of a cycle
type Course struct {
	ID        uint      `json:"id" db:"id"`
	Code      string    `json:"code" db:"code" validate:"required,notblank,max=50"`
	Name      string    `json:"name" db:"name" validate:"required,notblank,max=255"`
	CycleID   uint      `json:"cycleId" db:"cycle_id" validate:"required"`
	Year      int       `json:"year" db:"year" validate:"required,min=1,max=2"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Department belongs to a center and a professional family
type Department struct {
	ID          uint      `json:"id" db:"id"`
	Code        string    `json:"code" db:"code" validate:"required,notblank,max=50"`
	Name        string    `json:"name" db:"name" validate:"required,notblank,max=255"`
	Description string    `json:"description" db:"description"`
	FamilyID    uint      `json:"familyId" db:"family_id" validate:"required"`
	CenterID    uint      `json:"centerId" db:"center_id" validate:"required"`
	HeadUserID  *uint     `json:"head,omitempty" db:"head_user_id"`
	Email       string    `json:"email,omitempty" db:"email" validate:"omitempty,email"`
	Phone       string    `json:"phone,omitempty" db:"phone" validate:"max=50"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// MasterDataFilter narrows master data listings
type MasterDataFilter struct {
	ActiveOnly bool
	Search     string
	ParentID   *uint // family for cycles/departments, cycle for courses
	CenterID   *uint // departments only
}

// ImportError describes one rejected row of a CSV import
type ImportError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportResult summarises a CSV import
type ImportResult struct {
	Success      bool          `json:"success"`
	TotalRows    int           `json:"totalRows"`
	SuccessCount int           `json:"successCount"`
	ErrorCount   int           `json:"errorCount"`
	Errors       []ImportError `json:"errors"`
}
