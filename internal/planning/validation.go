// Package planning reviews sprint plans. Checks are pluggable validators
// run in priority order; each reports blocking errors and advisory warnings
// located at a task or at the sprint.
package planning

import (
	"context"
	"sort"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// Validator is the interface for pluggable plan checks.
type Validator interface {
	// Name returns a unique identifier for this validator.
	Name() string

	// Priority determines execution order (lower values run first).
	//   1-9:   structural checks (cycles, hierarchy)
	//   10-99: schedule and content checks
	Priority() int

	// Validate checks the plan and returns any errors or warnings found.
	Validate(ctx context.Context, plan *SprintPlan, vctx *ValidationContext) ValidationResult
}

// SprintPlan is what validators look at: a sprint with its tasks in list order
type SprintPlan struct {
	Sprint *types.Sprint
	Tasks  []*types.Task
	Users  map[int64]*types.User
}

// ValidationContext carries the environment of a review.
type ValidationContext struct {
	// Now is the reference time for overdue checks.
	Now time.Time

	// WorkingMinutesPerDay converts estimates into days.
	WorkingMinutesPerDay int

	// Location is the calendar timezone dates are compared in. Nil means UTC.
	Location *time.Location
}

// ValidationResult contains errors and warnings from validation.
type ValidationResult struct {
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

// ValidationError represents a broken plan, for example a dependency cycle
// that prevents scheduling.
type ValidationError struct {
	// Code is a machine-readable identifier (e.g., "DEPENDENCY_CYCLE").
	Code string `json:"code"`

	Message string `json:"message"`

	// Location is "sprint" or "task-<id>".
	Location string `json:"location"`
}

// ValidationWarning represents something a planner should look at.
type ValidationWarning struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Location string          `json:"location"`
	Severity WarningSeverity `json:"severity"`
}

// WarningSeverity indicates the importance of a warning.
type WarningSeverity int

const (
	// WarningSeverityLow indicates minor issues that are nice to fix.
	WarningSeverityLow WarningSeverity = iota

	// WarningSeverityMedium indicates issues that should be addressed.
	WarningSeverityMedium

	// WarningSeverityHigh indicates issues that put the sprint at risk.
	WarningSeverityHigh
)

// String returns the string representation of the severity.
func (s WarningSeverity) String() string {
	switch s {
	case WarningSeverityLow:
		return "LOW"
	case WarningSeverityMedium:
		return "MEDIUM"
	case WarningSeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the severity by name in JSON and YAML.
func (s WarningSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ValidatorRegistry manages a collection of validators and orchestrates validation.
type ValidatorRegistry struct {
	validators []Validator
}

// NewValidatorRegistry creates a new empty registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{
		validators: make([]Validator, 0),
	}
}

// DefaultRegistry returns a registry with every built-in check.
func DefaultRegistry() *ValidatorRegistry {
	r := NewValidatorRegistry()
	r.Register(&CycleValidator{})
	r.Register(&ScheduleValidator{})
	r.Register(&AssignmentValidator{})
	r.Register(&EstimateValidator{})
	r.Register(&ImpedimentValidator{})
	r.Register(&StructureValidator{})
	return r
}

// Register adds a validator to the registry, keeping priority order.
func (r *ValidatorRegistry) Register(v Validator) {
	r.validators = append(r.validators, v)
	sort.SliceStable(r.validators, func(i, j int) bool {
		return r.validators[i].Priority() < r.validators[j].Priority()
	})
}

// Names lists the registered validators in execution order.
func (r *ValidatorRegistry) Names() []string {
	names := make([]string, len(r.validators))
	for i, v := range r.validators {
		names[i] = v.Name()
	}
	return names
}

// ValidateAll runs all registered validators against the plan.
// All validators run even if earlier ones fail (collect all issues).
func (r *ValidatorRegistry) ValidateAll(ctx context.Context, plan *SprintPlan, vctx *ValidationContext) ValidationResult {
	result := ValidationResult{
		Errors:   make([]ValidationError, 0),
		Warnings: make([]ValidationWarning, 0),
	}
	if vctx == nil {
		vctx = &ValidationContext{}
	}
	if vctx.Now.IsZero() {
		vctx.Now = time.Now()
	}
	if vctx.WorkingMinutesPerDay <= 0 {
		vctx.WorkingMinutesPerDay = 450
	}

	for _, v := range r.validators {
		if ctx.Err() != nil {
			break
		}
		vr := v.Validate(ctx, plan, vctx)
		result.Errors = append(result.Errors, vr.Errors...)
		result.Warnings = append(result.Warnings, vr.Warnings...)
	}

	return result
}

// HasErrors returns true if the validation result contains any errors.
func (r ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if the validation result contains any warnings.
func (r ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// IsValid returns true if there are no errors (warnings are acceptable).
func (r ValidationResult) IsValid() bool {
	return !r.HasErrors()
}

func newResult() ValidationResult {
	return ValidationResult{
		Errors:   make([]ValidationError, 0),
		Warnings: make([]ValidationWarning, 0),
	}
}
