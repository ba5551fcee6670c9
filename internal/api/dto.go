package api

import (
	"encoding/json"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

type nameRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type aclRequest struct {
	UserID  *int64 `json:"user_id" validate:"omitempty,gt=0"`
	GroupID *int64 `json:"group_id" validate:"omitempty,gt=0"`
}

type sprintRequest struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Start       *time.Time `json:"start"`
	ReleaseDate *time.Time `json:"release_date"`
}

// sprintPatchRequest mirrors planner.SprintPatch field for field
type sprintPatchRequest struct {
	Name             *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Start            *time.Time `json:"start"`
	ClearStart       bool       `json:"clear_start" validate:"excluded_with=Start"`
	ReleaseDate      *time.Time `json:"release_date"`
	ClearReleaseDate bool       `json:"clear_release_date" validate:"excluded_with=ReleaseDate"`
}

type statusRequest struct {
	Status types.SprintStatus `json:"status" validate:"required,oneof=created started closed"`
}

// createTaskRequest mirrors planner.TaskInput field for field
type createTaskRequest struct {
	Name             string         `json:"name" validate:"required,max=200"`
	Kind             types.TaskKind `json:"kind" validate:"omitempty,oneof=task story milestone"`
	ParentID         *int64         `json:"parent_id" validate:"omitempty,gt=0"`
	AfterID          int64          `json:"after_id" validate:"gte=0"`
	ResourceID       *int64         `json:"resource_id" validate:"omitempty,gt=0"`
	OriginalEstimate int            `json:"original_estimate" validate:"gte=0"`
	MinEstimate      int            `json:"min_estimate" validate:"gte=0"`
	MaxEstimate      int            `json:"max_estimate" validate:"gte=0"`
	FixedStart       *time.Time     `json:"fixed_start"`
	Notes            string         `json:"notes" validate:"max=10000"`
}

// patchTaskRequest mirrors planner.TaskPatch field for field
type patchTaskRequest struct {
	Name             *string           `json:"name" validate:"omitempty,min=1,max=200"`
	Status           *types.TaskStatus `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	ResourceID       *int64            `json:"resource_id" validate:"omitempty,gt=0"`
	ClearResource    bool              `json:"clear_resource" validate:"excluded_with=ResourceID"`
	OriginalEstimate *int              `json:"original_estimate" validate:"omitempty,gte=0"`
	MinEstimate      *int              `json:"min_estimate" validate:"omitempty,gte=0"`
	MaxEstimate      *int              `json:"max_estimate" validate:"omitempty,gte=0"`
	Remaining        *int              `json:"remaining" validate:"omitempty,gte=0"`
	FixedStart       *time.Time        `json:"fixed_start"`
	ClearFixedStart  bool              `json:"clear_fixed_start" validate:"excluded_with=FixedStart"`
	Impediment       *bool             `json:"impediment"`
	Notes            *string           `json:"notes" validate:"omitempty,max=10000"`
}

type moveRequest struct {
	TargetID int64  `json:"target_id" validate:"required,gt=0"`
	Position string `json:"position" validate:"required,oneof=before after into"`
}

type dependencyRequest struct {
	PredecessorID int64 `json:"predecessor_id" validate:"required,gt=0"`
}

type pasteRequest struct {
	Clipboard json.RawMessage `json:"clipboard" validate:"required"`
	AfterID   int64           `json:"after_id" validate:"gte=0"`
}

// worklogRequest mirrors planner.WorkInput field for field
type worklogRequest struct {
	UserID    int64     `json:"user_id" validate:"gte=0"`
	Start     time.Time `json:"start"`
	TimeSpent int       `json:"time_spent" validate:"required,gt=0"`
	Remaining *int      `json:"remaining" validate:"omitempty,gte=0"`
	Comment   string    `json:"comment" validate:"max=1000"`
}

type userRequest struct {
	Name            string     `json:"name" validate:"required,max=100"`
	Email           string     `json:"email" validate:"omitempty,email"`
	Admin           bool       `json:"admin"`
	Availability    float64    `json:"availability" validate:"gte=0,lte=1"`
	FirstWorkingDay *time.Time `json:"first_working_day"`
	LastWorkingDay  *time.Time `json:"last_working_day"`
}

type patchUserRequest struct {
	Name            *string    `json:"name" validate:"omitempty,min=1,max=100"`
	Email           *string    `json:"email" validate:"omitempty,email"`
	Admin           *bool      `json:"admin"`
	Availability    *float64   `json:"availability" validate:"omitempty,gt=0,lte=1"`
	FirstWorkingDay *time.Time `json:"first_working_day"`
	LastWorkingDay  *time.Time `json:"last_working_day"`
}

func (r *patchUserRequest) apply(u *types.User) {
	if r.Name != nil {
		u.Name = *r.Name
	}
	if r.Email != nil {
		u.Email = *r.Email
	}
	if r.Admin != nil {
		u.Admin = *r.Admin
	}
	if r.Availability != nil {
		u.Availability = *r.Availability
	}
	if r.FirstWorkingDay != nil {
		u.FirstWorkingDay = r.FirstWorkingDay
	}
	if r.LastWorkingDay != nil {
		u.LastWorkingDay = r.LastWorkingDay
	}
}

type offDayRequest struct {
	FirstDay time.Time        `json:"first_day" validate:"required"`
	LastDay  time.Time        `json:"last_day" validate:"required"`
	Type     types.OffDayType `json:"type" validate:"required,oneof=vacation sick holiday trip"`
}

type groupRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description string  `json:"description" validate:"max=1000"`
	MemberIDs   []int64 `json:"member_ids" validate:"dive,gt=0"`
}

type patchGroupRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=1000"`
	MemberIDs   *[]int64 `json:"member_ids"`
}

type memberRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type toggleResponse struct {
	PredecessorID int64 `json:"predecessor_id"`
	SuccessorID   int64 `json:"successor_id"`
	Exists        bool  `json:"exists"`
}
