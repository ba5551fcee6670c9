package types

import (
	"fmt"
	"time"
)

// SprintStatus represents the lifecycle state of a sprint
type SprintStatus string

const (
	SprintCreated SprintStatus = "created"
	SprintStarted SprintStatus = "started"
	SprintClosed  SprintStatus = "closed"
)

// IsValid checks if the sprint status value is valid
func (s SprintStatus) IsValid() bool {
	switch s {
	case SprintCreated, SprintStarted, SprintClosed:
		return true
	}
	return false
}

// ValidTransitions defines the sprint state machine.
//
//	created → started → closed
//	   ↑         │
//	   └─────────┘
//
// closed is terminal.
func (s SprintStatus) ValidTransitions() []SprintStatus {
	switch s {
	case SprintCreated:
		return []SprintStatus{SprintStarted}
	case SprintStarted:
		return []SprintStatus{SprintCreated, SprintClosed}
	default:
		return []SprintStatus{}
	}
}

// CanTransitionTo checks if a transition from this status to the target is valid
func (s SprintStatus) CanTransitionTo(target SprintStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// Sprint is a time box of tasks belonging to a feature.
// End and the work sums are derived by recalculation.
type Sprint struct {
	ID                 int64        `json:"id"`
	FeatureID          int64        `json:"feature_id"`
	Name               string       `json:"name"`
	Status             SprintStatus `json:"status"`
	Start              *time.Time   `json:"start,omitempty"`
	End                *time.Time   `json:"end,omitempty"`
	ReleaseDate        *time.Time   `json:"release_date,omitempty"`
	OriginalEstimation int          `json:"original_estimation"` // minutes
	Worked             int          `json:"worked"`              // minutes
	Remaining          int          `json:"remaining"`           // minutes
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Validate checks if the sprint has valid field values
func (s *Sprint) Validate() error {
	if s.FeatureID <= 0 {
		return fmt.Errorf("sprint feature_id is required")
	}
	if err := validateName("sprint", s.Name, 200); err != nil {
		return err
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid sprint status: %s", s.Status)
	}
	if s.OriginalEstimation < 0 || s.Worked < 0 || s.Remaining < 0 {
		return fmt.Errorf("sprint work sums cannot be negative")
	}
	return nil
}

// IsClosed reports whether the sprint rejects task edits
func (s *Sprint) IsClosed() bool {
	return s.Status == SprintClosed
}

// IsLate reports whether the computed end falls after the release date
func (s *Sprint) IsLate() bool {
	if s.End == nil || s.ReleaseDate == nil {
		return false
	}
	return s.End.After(*s.ReleaseDate)
}
