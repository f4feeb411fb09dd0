package workflow

import (
	"time"

	"fp-innova/internal/models"
)

// DefaultAmendmentPeriod applies when a requested document has no deadline
const DefaultAmendmentPeriod = 7 * 24 * time.Hour

// DocumentStatus derives the effective status of one entry at now. Entries
// past their deadline read as expired unless already completed.
func DocumentStatus(d *models.DocumentAmendment, now time.Time) string {
	if d.Status == models.AmendmentCompleted {
		return models.AmendmentCompleted
	}
	if d.Status == models.AmendmentExpired || now.After(d.Deadline) {
		return models.AmendmentExpired
	}
	return d.Status
}

// AmendmentStatus derives the aggregate status from the entries: completed
// when all are completed, expired when any open entry expired, in_progress
// once at least one is completed, pending otherwise.
func AmendmentStatus(docs []models.DocumentAmendment, now time.Time) string {
	if len(docs) == 0 {
		return models.AmendmentPending
	}
	completed := 0
	expired := false
	for i := range docs {
		switch DocumentStatus(&docs[i], now) {
		case models.AmendmentCompleted:
			completed++
		case models.AmendmentExpired:
			expired = true
		}
	}
	switch {
	case completed == len(docs):
		return models.AmendmentCompleted
	case expired:
		return models.AmendmentExpired
	case completed > 0:
		return models.AmendmentInProgress
	default:
		return models.AmendmentPending
	}
}

// ApplyDerivedStatus rewrites the statuses of a and its entries as seen at now
func ApplyDerivedStatus(a *models.ProjectAmendment, now time.Time) {
	for i := range a.Documents {
		a.Documents[i].Status = DocumentStatus(&a.Documents[i], now)
	}
	a.Status = AmendmentStatus(a.Documents, now)
}

// EarliestDeadline returns the soonest entry deadline
func EarliestDeadline(docs []models.DocumentAmendment) time.Time {
	var earliest time.Time
	for i, d := range docs {
		if i == 0 || d.Deadline.Before(earliest) {
			earliest = d.Deadline
		}
	}
	return earliest
}
