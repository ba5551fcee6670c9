package types

import (
	"strings"
	"testing"
	"time"
)

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr string
	}{
		{
			name: "valid task",
			task: Task{Name: "Implement login", Kind: KindTask, Status: TaskTodo, OriginalEstimate: 120, ResourceID: Int64(1)},
		},
		{
			name:    "missing name",
			task:    Task{Kind: KindTask, Status: TaskTodo},
			wantErr: "name is required",
		},
		{
			name:    "name too long",
			task:    Task{Name: strings.Repeat("x", 201), Kind: KindTask, Status: TaskTodo},
			wantErr: "200 characters or less",
		},
		{
			name:    "invalid kind",
			task:    Task{Name: "x", Kind: "epic", Status: TaskTodo},
			wantErr: "invalid task kind",
		},
		{
			name:    "negative remaining",
			task:    Task{Name: "x", Kind: KindTask, Status: TaskTodo, Remaining: -1},
			wantErr: "cannot be negative",
		},
		{
			name:    "min above original",
			task:    Task{Name: "x", Kind: KindTask, Status: TaskTodo, OriginalEstimate: 60, MinEstimate: 90},
			wantErr: "min_estimate",
		},
		{
			name:    "max below original",
			task:    Task{Name: "x", Kind: KindTask, Status: TaskTodo, OriginalEstimate: 60, MaxEstimate: 30},
			wantErr: "max_estimate",
		},
		{
			name:    "milestone with work",
			task:    Task{Name: "Release", Kind: KindMilestone, Status: TaskTodo, OriginalEstimate: 10},
			wantErr: "milestone cannot carry work",
		},
		{
			name:    "story with resource",
			task:    Task{Name: "Login", Kind: KindStory, Status: TaskTodo, ResourceID: Int64(2)},
			wantErr: "story cannot have a resource",
		},
		{
			name:    "fixed start on plain task",
			task:    Task{Name: "x", Kind: KindTask, Status: TaskTodo, FixedStart: Time(time.Now())},
			wantErr: "fixed start",
		},
		{
			name: "milestone with fixed start",
			task: Task{Name: "Release", Kind: KindMilestone, Status: TaskTodo, FixedStart: Time(time.Now())},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTaskWork(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want int
	}{
		{"estimate only", Task{OriginalEstimate: 240}, 240},
		{"remaining overrides estimate", Task{OriginalEstimate: 240, Remaining: 60}, 60},
		{"spent plus remaining", Task{OriginalEstimate: 240, TimeSpent: 120, Remaining: 180}, 300},
		{"spent only", Task{OriginalEstimate: 240, TimeSpent: 200}, 200},
		{"nothing", Task{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Work(); got != tt.want {
				t.Errorf("Work() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskTodo, TaskInProgress, true},
		{TaskTodo, TaskDone, true},
		{TaskInProgress, TaskTodo, true},
		{TaskInProgress, TaskDone, true},
		{TaskDone, TaskTodo, true},
		{TaskDone, TaskInProgress, false},
		{TaskDone, TaskDone, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSprintStatusTransitions(t *testing.T) {
	if !SprintCreated.CanTransitionTo(SprintStarted) {
		t.Error("created -> started should be allowed")
	}
	if SprintCreated.CanTransitionTo(SprintClosed) {
		t.Error("created -> closed should not be allowed")
	}
	if !SprintStarted.CanTransitionTo(SprintCreated) {
		t.Error("started -> created should be allowed")
	}
	if len(SprintClosed.ValidTransitions()) != 0 {
		t.Error("closed should be terminal")
	}
}

func TestTaskCloneIsDeep(t *testing.T) {
	start := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	orig := &Task{
		ID:           5,
		ParentID:     Int64(2),
		Start:        Time(start),
		Predecessors: []*Relation{{ID: 1, SuccessorID: 5, PredecessorID: 3, Visible: true}},
	}
	c := orig.Clone()
	*c.ParentID = 9
	*c.Start = start.Add(time.Hour)
	c.Predecessors[0].PredecessorID = 7

	if *orig.ParentID != 2 {
		t.Errorf("parent mutated through clone: %d", *orig.ParentID)
	}
	if !orig.Start.Equal(start) {
		t.Errorf("start mutated through clone: %v", orig.Start)
	}
	if orig.Predecessors[0].PredecessorID != 3 {
		t.Errorf("relation mutated through clone: %d", orig.Predecessors[0].PredecessorID)
	}
}

func TestCompareVersionNames(t *testing.T) {
	versions := []*Version{
		{Name: "legacy"},
		{Name: "1.10.0"},
		{Name: "v1.2.0"},
		{Name: "1.2.0-rc1"},
		{Name: "alpha"},
	}
	SortVersions(versions)

	want := []string{"1.2.0-rc1", "v1.2.0", "1.10.0", "alpha", "legacy"}
	for i, v := range versions {
		if v.Name != want[i] {
			t.Errorf("position %d: got %s, want %s", i, v.Name, want[i])
		}
	}
}

func TestACLEntryValidate(t *testing.T) {
	if err := (&ACLEntry{ProductID: 1, UserID: Int64(1)}).Validate(); err != nil {
		t.Errorf("user entry should be valid: %v", err)
	}
	if err := (&ACLEntry{ProductID: 1}).Validate(); err == nil {
		t.Error("entry without grantee should be invalid")
	}
	if err := (&ACLEntry{ProductID: 1, UserID: Int64(1), GroupID: Int64(2)}).Validate(); err == nil {
		t.Error("entry with both grantees should be invalid")
	}
}

func TestUserValidate(t *testing.T) {
	u := &User{Name: "alice", Email: "alice@example.com", Availability: 0.8}
	if err := u.Validate(); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}
	u.Availability = 0
	if err := u.Validate(); err == nil {
		t.Error("zero availability should be rejected")
	}
	u.Availability = 1
	u.Email = "not-an-email"
	if err := u.Validate(); err == nil {
		t.Error("bad email should be rejected")
	}
}

func TestOffDayCovers(t *testing.T) {
	off := &OffDay{
		UserID:   1,
		FirstDay: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		LastDay:  time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		Type:     OffDayVacation,
	}
	berlin := time.FixedZone("CET", 3600)

	if !off.Covers(time.Date(2025, 3, 10, 23, 30, 0, 0, berlin)) {
		t.Error("first day should be covered")
	}
	if !off.Covers(time.Date(2025, 3, 12, 8, 0, 0, 0, berlin)) {
		t.Error("last day should be covered")
	}
	if off.Covers(time.Date(2025, 3, 13, 8, 0, 0, 0, berlin)) {
		t.Error("day after range should not be covered")
	}
}

func TestOffDayCoversLocalDateAfterUTCRoundTrip(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	// local midnight as it comes back from storage
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, berlin).UTC()
	off := &OffDay{UserID: 1, FirstDay: monday, LastDay: monday, Type: OffDaySick}

	if !off.Covers(time.Date(2026, 3, 9, 8, 0, 0, 0, berlin)) {
		t.Error("local monday should be covered")
	}
	if off.Covers(time.Date(2026, 3, 8, 8, 0, 0, 0, berlin)) {
		t.Error("sunday before should not be covered")
	}
}
