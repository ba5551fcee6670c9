// Package types holds the Kassandra domain entities shared by every layer:
// the product catalog (products, versions, features, sprints), sprint tasks
// with their dependency relations, users and groups, and the audit trail.
package types

import (
	"fmt"
	"time"
)

// EntityType names the kind of record an audit event refers to
type EntityType string

const (
	EntityProduct EntityType = "product"
	EntityVersion EntityType = "version"
	EntityFeature EntityType = "feature"
	EntitySprint  EntityType = "sprint"
	EntityTask    EntityType = "task"
	EntityUser    EntityType = "user"
	EntityGroup   EntityType = "group"
)

// IsValid checks if the entity type value is valid
func (e EntityType) IsValid() bool {
	switch e {
	case EntityProduct, EntityVersion, EntityFeature, EntitySprint, EntityTask, EntityUser, EntityGroup:
		return true
	}
	return false
}

// EventType categorizes audit trail events
type EventType string

const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventDeleted           EventType = "deleted"
	EventStatusChanged     EventType = "status_changed"
	EventMoved             EventType = "moved"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventWorkLogged        EventType = "work_logged"
	EventAccessGranted     EventType = "access_granted"
	EventAccessRevoked     EventType = "access_revoked"
	EventRecalculated      EventType = "recalculated"
)

// Event represents an audit trail entry
type Event struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	EventType  EventType  `json:"event_type"`
	Actor      string     `json:"actor"`
	OldValue   *string    `json:"old_value,omitempty"`
	NewValue   *string    `json:"new_value,omitempty"`
	Comment    *string    `json:"comment,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Statistics provides aggregate counts over the catalog
type Statistics struct {
	Products        int `json:"products"`
	Versions        int `json:"versions"`
	Features        int `json:"features"`
	Sprints         int `json:"sprints"`
	StartedSprints  int `json:"started_sprints"`
	Tasks           int `json:"tasks"`
	OpenTasks       int `json:"open_tasks"`
	InProgressTasks int `json:"in_progress_tasks"`
	DoneTasks       int `json:"done_tasks"`
	Users           int `json:"users"`
	// Minutes summed over leaf tasks
	OriginalEstimate int `json:"original_estimate"`
	TimeSpent        int `json:"time_spent"`
	Remaining        int `json:"remaining"`
}

// EventFilter narrows audit trail queries
type EventFilter struct {
	EntityType EntityType
	EntityID   int64
	Limit      int
}

// validateName is shared by the catalog entities
func validateName(kind, name string, max int) error {
	if len(name) == 0 {
		return fmt.Errorf("%s name is required", kind)
	}
	if len(name) > max {
		return fmt.Errorf("%s name must be %d characters or less (got %d)", kind, max, len(name))
	}
	return nil
}
