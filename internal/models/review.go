package models

import "time"

// Review is one reviewer's scoring of a project. At most one per (project, reviewer).
type Review struct {
	ID                  uint       `json:"id" db:"id"`
	ProjectID           uint       `json:"projectId" db:"project_id"`
	ReviewerID          uint       `json:"reviewerId" db:"reviewer_id"`
	ReviewerName        string     `json:"reviewerName,omitempty" db:"reviewer_name"`
	Scores              ScoreMap   `json:"scores" db:"scores"`
	Comments            CommentMap `json:"comments" db:"comments"`
	GeneralObservations string     `json:"generalObservations" db:"general_observations"`
	ProposedAmount      *float64   `json:"proposedAmount,omitempty" db:"proposed_amount"`
	AmountJustification string     `json:"amountJustification" db:"amount_justification"`
	Score               float64    `json:"score" db:"score"`
	WeightedScore       float64    `json:"weightedScore" db:"weighted_score"`
	IsDraft             bool       `json:"isDraft" db:"is_draft"`
	FinalizedAt         *time.Time `json:"finalizedAt,omitempty" db:"finalized_at"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
}

// ReviewCompletion reports progress towards the minimum number of corrections
type ReviewCompletion struct {
	ProjectID        uint `json:"projectId"`
	CompletedReviews int  `json:"completedReviews"`
	DraftReviews     int  `json:"draftReviews"`
	MinCorrections   int  `json:"minCorrections"`
	Complete         bool `json:"complete"`
}

// Amendment statuses, shared by project and document amendments
const (
	AmendmentPending    = "pending"
	AmendmentInProgress = "in_progress"
	AmendmentCompleted  = "completed"
	AmendmentExpired    = "expired"
)

// ProjectAmendment is a set of document corrections requested by a reviewer
type ProjectAmendment struct {
	ID               uint                `json:"id" db:"id"`
	ProjectID        uint                `json:"projectId" db:"project_id"`
	ReviewerID       uint                `json:"reviewerId" db:"reviewer_id"`
	Status           string              `json:"status" db:"status"`
	Deadline         time.Time           `json:"deadline" db:"deadline"`
	VerificationCode string              `json:"verificationCode,omitempty" db:"verification_code"`
	CompletedAt      *time.Time          `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt        time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time           `json:"updatedAt" db:"updated_at"`
	Documents        []DocumentAmendment `json:"documents" db:"-"`
}

// DocumentAmendment is the correction requested for one document
type DocumentAmendment struct {
	ID                    uint       `json:"id" db:"id"`
	AmendmentID           uint       `json:"amendmentId" db:"amendment_id"`
	DocumentID            *uint      `json:"documentId,omitempty" db:"document_id"`
	DocumentName          string     `json:"documentName" db:"document_name"`
	Justification         string     `json:"justification" db:"justification"`
	Status                string     `json:"status" db:"status"`
	RequestedAt           time.Time  `json:"requestedAt" db:"requested_at"`
	Deadline              time.Time  `json:"deadline" db:"deadline"`
	CompletedAt           *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	ReplacementDocumentID *uint      `json:"replacementDocumentId,omitempty" db:"replacement_document_id"`
}
