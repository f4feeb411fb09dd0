// Package workflow contains the project status state machine and the review
// and amendment rules that drive it. Everything here is pure.
package workflow

import (
	"errors"
	"fmt"

	"fp-innova/internal/models"
)

// Event triggers a project status transition
type Event string

const (
	EventSubmit              Event = "submit"
	EventAssignReviewers     Event = "assign_reviewers"
	EventReviewSaved         Event = "review_saved"
	EventReviewDeleted       Event = "review_deleted"
	EventReviewersChanged    Event = "reviewers_changed"
	EventRequestAmendments   Event = "request_amendments"
	EventAmendmentsCompleted Event = "amendments_completed"
	EventAmendmentsExpired   Event = "amendments_expired"
	EventApprove             Event = "approve"
	EventReject              Event = "reject"
	EventReopen              Event = "reopen"
)

var (
	// ErrInvalidTransition is returned when event is not legal in the current status
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPreconditionFailed is returned when the transition exists but its guard fails
	ErrPreconditionFailed = errors.New("transition precondition not met")
)

// Conditions carries the facts the transition guards look at
type Conditions struct {
	ReviewerCount           int
	CompletedReviews        int
	MinCorrections          int
	ActorRole               string
	ActorCanApprove         bool
	RequesterHasFinalReview bool
}

func (c Conditions) reviewComplete() bool {
	required := c.MinCorrections
	if required < 1 {
		required = 1
	}
	return c.CompletedReviews >= required
}

// Transition returns the status reached from current on event, or an error
// wrapping ErrInvalidTransition or ErrPreconditionFailed.
func Transition(current models.ProjectStatus, event Event, c Conditions) (models.ProjectStatus, error) {
	switch event {
	case EventSubmit:
		if current == models.ProjectDraft {
			return models.ProjectSubmitted, nil
		}

	case EventAssignReviewers:
		if current == models.ProjectSubmitted {
			if c.ReviewerCount < 1 {
				return current, fmt.Errorf("%w: at least one reviewer is required", ErrPreconditionFailed)
			}
			return models.ProjectReviewing, nil
		}

	case EventReviewSaved:
		switch current {
		case models.ProjectSubmitted, models.ProjectReviewing:
			if c.reviewComplete() {
				return models.ProjectReviewed, nil
			}
			return models.ProjectReviewing, nil
		case models.ProjectReviewed:
			return models.ProjectReviewed, nil
		}

	case EventRequestAmendments:
		switch current {
		case models.ProjectSubmitted, models.ProjectReviewing, models.ProjectReviewed:
			if c.RequesterHasFinalReview {
				return current, fmt.Errorf("%w: amendments must be requested before finalizing a review", ErrPreconditionFailed)
			}
			return models.ProjectNeedsChanges, nil
		}

	case EventAmendmentsCompleted, EventAmendmentsExpired:
		if current == models.ProjectNeedsChanges {
			if c.ReviewerCount > 0 {
				return models.ProjectReviewing, nil
			}
			return models.ProjectSubmitted, nil
		}

	case EventReviewDeleted, EventReviewersChanged:
		switch current {
		case models.ProjectReviewing, models.ProjectReviewed:
			switch {
			case c.reviewComplete():
				return models.ProjectReviewed, nil
			case c.ReviewerCount > 0:
				return models.ProjectReviewing, nil
			default:
				return models.ProjectSubmitted, nil
			}
		}

	case EventApprove:
		if current == models.ProjectReviewed {
			if !c.ActorCanApprove {
				return current, fmt.Errorf("%w: actor may not approve projects", ErrPreconditionFailed)
			}
			if !c.reviewComplete() {
				return current, fmt.Errorf("%w: %d of %d required reviews completed",
					ErrPreconditionFailed, c.CompletedReviews, c.MinCorrections)
			}
			return models.ProjectApproved, nil
		}

	case EventReject:
		if current == models.ProjectReviewed {
			if !c.ActorCanApprove {
				return current, fmt.Errorf("%w: actor may not reject projects", ErrPreconditionFailed)
			}
			return models.ProjectRejected, nil
		}

	case EventReopen:
		if current == models.ProjectApproved || current == models.ProjectRejected {
			if c.ActorRole != models.RoleAdmin {
				return current, fmt.Errorf("%w: only administrators may reopen a decision", ErrPreconditionFailed)
			}
			return models.ProjectReviewed, nil
		}
	}

	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, current)
}

// Editable reports whether presenters may still modify a project in status
func Editable(status models.ProjectStatus) bool {
	return status == models.ProjectDraft || status == models.ProjectNeedsChanges
}
