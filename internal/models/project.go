package models

import "time"

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

// Project statuses
const (
	ProjectDraft        ProjectStatus = "draft"
	ProjectSubmitted    ProjectStatus = "submitted"
	ProjectReviewing    ProjectStatus = "reviewing"
	ProjectReviewed     ProjectStatus = "reviewed"
	ProjectApproved     ProjectStatus = "approved"
	ProjectRejected     ProjectStatus = "rejected"
	ProjectNeedsChanges ProjectStatus = "needs_changes"
)

// Document statuses
const (
	DocumentPending  = "pending"
	DocumentApproved = "approved"
	DocumentRejected = "rejected"
)

// Project is an application submitted to a convocatoria category
type Project struct {
	ID                   uint                  `json:"id" db:"id"`
	ConvocatoriaID       uint                  `json:"convocatoriaId" db:"convocatoria_id"`
	CategoryID           uint                  `json:"categoryId" db:"category_id"`
	Category             CategorySnapshot      `json:"category" db:"category_snapshot"`
	Title                string                `json:"title" db:"title"`
	Description          string                `json:"description" db:"description"`
	RequestedAmount      float64               `json:"requestedAmount" db:"requested_amount"`
	CenterID             uint                  `json:"centerId" db:"center_id"`
	DepartmentID         *uint                 `json:"departmentId,omitempty" db:"department_id"`
	Status               ProjectStatus         `json:"status" db:"status"`
	Score                *float64              `json:"score" db:"score"`
	WeightedScore        *float64              `json:"weightedScore,omitempty" db:"weighted_score"`
	CreatedBy            uint                  `json:"createdBy" db:"created_by"`
	SubmittedAt          *time.Time            `json:"submissionDate,omitempty" db:"submitted_at"`
	StatusChangedAt      time.Time             `json:"statusChangedAt" db:"status_changed_at"`
	CreatedAt            time.Time             `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time             `json:"lastModified" db:"updated_at"`
	Presenters           []uint                `json:"presenters" db:"-"`
	Reviewers            []ProjectReviewer     `json:"reviewers" db:"-"`
	CollaboratingCenters []CollaboratingCenter `json:"collaboratingCenters" db:"-"`
	Documents            []ProjectDocument     `json:"documents" db:"-"`
}

// IsPresenter reports whether userID is one of the project presenters
func (p *Project) IsPresenter(userID uint) bool {
	for _, id := range p.Presenters {
		if id == userID {
			return true
		}
	}
	return false
}

// Reviewer returns the reviewer entry of userID
func (p *Project) Reviewer(userID uint) (*ProjectReviewer, bool) {
	for i := range p.Reviewers {
		if p.Reviewers[i].UserID == userID {
			return &p.Reviewers[i], true
		}
	}
	return nil, false
}

// ProjectReviewer is a user assigned to review a project
type ProjectReviewer struct {
	ProjectID   uint      `json:"-" db:"project_id"`
	UserID      uint      `json:"userId" db:"user_id"`
	Name        string    `json:"name,omitempty" db:"name"`
	Role        string    `json:"role,omitempty" db:"role"`
	HasReviewed bool      `json:"hasReviewed" db:"has_reviewed"`
	AssignedAt  time.Time `json:"assignedAt" db:"assigned_at"`
}

// CollaboratingCenter is a partner center of a project
type CollaboratingCenter struct {
	ID         uint   `json:"id" db:"id"`
	ProjectID  uint   `json:"-" db:"project_id"`
	CenterID   *uint  `json:"centerId,omitempty" db:"center_id"`
	Name       string `json:"name" db:"name" validate:"required,notblank"`
	Department string `json:"department,omitempty" db:"department"`
}

// ProjectDocument is a file attached to a project
type ProjectDocument struct {
	ID         uint      `json:"id" db:"id"`
	ProjectID  uint      `json:"projectId" db:"project_id"`
	Name       string    `json:"name" db:"name"`
	Type       string    `json:"type" db:"type"`
	StorageKey string    `json:"-" db:"storage_key"`
	URL        string    `json:"url" db:"-"`
	Size       int64     `json:"size" db:"size"`
	Status     string    `json:"status" db:"status"`
	UploadedBy *uint     `json:"uploadedBy,omitempty" db:"uploaded_by"`
	UploadedAt time.Time `json:"uploadDate" db:"uploaded_at"`
}

// ProjectFilter narrows project listings
type ProjectFilter struct {
	ConvocatoriaID *uint
	CategoryID     *uint
	CenterID       *uint
	Status         ProjectStatus
	PresenterID    *uint
	ReviewerID     *uint
	Limit          int
	Offset         int
}
