package types

import (
	"fmt"
	"net/mail"
	"time"
)

// User is a person who can be assigned tasks and granted product access
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin"`
	// Availability is the fraction of a working day the user spends on sprint work
	Availability    float64    `json:"availability"`
	FirstWorkingDay *time.Time `json:"first_working_day,omitempty"`
	LastWorkingDay  *time.Time `json:"last_working_day,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Validate checks if the user has valid field values
func (u *User) Validate() error {
	if err := validateName("user", u.Name, 100); err != nil {
		return err
	}
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return fmt.Errorf("invalid email %q: %w", u.Email, err)
		}
	}
	if u.Availability <= 0 || u.Availability > 1 {
		return fmt.Errorf("availability must be in (0, 1] (got %v)", u.Availability)
	}
	if u.FirstWorkingDay != nil && u.LastWorkingDay != nil && u.LastWorkingDay.Before(*u.FirstWorkingDay) {
		return fmt.Errorf("last_working_day cannot be before first_working_day")
	}
	return nil
}

// OffDayType categorizes absences
type OffDayType string

const (
	OffDayVacation OffDayType = "vacation"
	OffDaySick     OffDayType = "sick"
	OffDayHoliday  OffDayType = "holiday"
	OffDayTrip     OffDayType = "trip"
)

// IsValid checks if the off day type value is valid
func (t OffDayType) IsValid() bool {
	switch t {
	case OffDayVacation, OffDaySick, OffDayHoliday, OffDayTrip:
		return true
	}
	return false
}

// OffDay is an inclusive range of calendar days a user does not work
type OffDay struct {
	ID       int64      `json:"id"`
	UserID   int64      `json:"user_id"`
	FirstDay time.Time  `json:"first_day"`
	LastDay  time.Time  `json:"last_day"`
	Type     OffDayType `json:"type"`
}

// Validate checks if the off day range is consistent
func (o *OffDay) Validate() error {
	if o.UserID <= 0 {
		return fmt.Errorf("off day user_id is required")
	}
	if !o.Type.IsValid() {
		return fmt.Errorf("invalid off day type: %s", o.Type)
	}
	if o.LastDay.Before(o.FirstDay) {
		return fmt.Errorf("off day last_day cannot be before first_day")
	}
	return nil
}

// Covers reports whether the calendar day of t falls inside the range.
// The range bounds are read in the location of t, so a day off entered as
// local midnight stays on its local date after a round trip through UTC.
func (o *OffDay) Covers(t time.Time) bool {
	day := DayKey(t)
	loc := t.Location()
	return day >= DayKey(o.FirstDay.In(loc)) && day <= DayKey(o.LastDay.In(loc))
}

// UserGroup bundles users for product access grants
type UserGroup struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemberIDs   []int64   `json:"member_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks if the group has valid field values
func (g *UserGroup) Validate() error {
	return validateName("group", g.Name, 100)
}

// HasMember reports whether userID belongs to the group
func (g *UserGroup) HasMember(userID int64) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DayKey encodes the calendar date of t as YYYYMMDD
func DayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
