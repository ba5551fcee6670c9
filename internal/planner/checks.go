package planner

import (
	"context"

	"github.com/abdallabushnaq/kassandra/internal/planning"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

// CheckSprint reviews a stored sprint plan with the built-in validators
func (p *Planner) CheckSprint(ctx context.Context, actor *types.User, sprintID int64) (*planning.ValidationResult, error) {
	plan, err := p.LoadSprint(ctx, actor, sprintID)
	if err != nil {
		return nil, err
	}
	result := planning.DefaultRegistry().ValidateAll(ctx, &planning.SprintPlan{
		Sprint: plan.Sprint,
		Tasks:  plan.Tasks,
		Users:  plan.Users,
	}, &planning.ValidationContext{
		Now:                  p.now(),
		WorkingMinutesPerDay: p.cal.WorkingMinutesPerDay,
		Location:             p.cal.Location,
	})
	return &result, nil
}
