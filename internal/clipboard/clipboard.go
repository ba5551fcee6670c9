// Package clipboard serializes a task, or a story with its descendants, into
// a self-contained JSON payload and turns such a payload back into fresh
// tasks ready to be pasted into any sprint.
package clipboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

const (
	// Format tags every payload this package produces
	Format = "kassandra/clipboard"
	// Version is the payload layout version
	Version = 1
)

// ErrInvalidPayload is returned for payloads that cannot be pasted
var ErrInvalidPayload = errors.New("invalid clipboard payload")

// Payload is the serialized clipboard content
type Payload struct {
	Format    string        `json:"format"`
	Version   int           `json:"version"`
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	CopiedAt  time.Time     `json:"copied_at"`
	Tasks     []Entry       `json:"tasks"`
	Relations []RelationRef `json:"relations,omitempty"`
}

// Entry is one copied task. Ref numbers are local to the payload.
type Entry struct {
	Ref       int         `json:"ref"`
	ParentRef *int        `json:"parent_ref,omitempty"`
	Task      *types.Task `json:"task"`
}

// RelationRef is a dependency between two copied tasks
type RelationRef struct {
	PredecessorRef int  `json:"predecessor_ref"`
	SuccessorRef   int  `json:"successor_ref"`
	Visible        bool `json:"visible"`
}

// Copy serializes the task with the given ID together with its subtree.
// Only relations between copied tasks are kept.
func Copy(list *tasklist.List, id int64) ([]byte, error) {
	block := list.Subtree(id)
	if len(block) == 0 {
		return nil, fmt.Errorf("task %d: %w", id, tasklist.ErrNotFound)
	}

	kind := string(types.KindTask)
	if block[0].IsStory() {
		kind = string(types.KindStory)
	}
	p := &Payload{
		Format:   Format,
		Version:  Version,
		ID:       uuid.New().String(),
		Kind:     kind,
		CopiedAt: time.Now().UTC(),
	}

	refs := make(map[int64]int, len(block))
	for i, t := range block {
		ref := i + 1
		refs[t.ID] = ref
		e := Entry{Ref: ref, Task: t.Clone()}
		e.Task.Predecessors = nil
		if i > 0 && t.ParentID != nil {
			parent := refs[*t.ParentID]
			e.ParentRef = &parent
		}
		p.Tasks = append(p.Tasks, e)
	}
	for _, t := range block {
		for _, r := range t.Predecessors {
			pred, ok := refs[r.PredecessorID]
			if !ok {
				continue
			}
			p.Relations = append(p.Relations, RelationRef{
				PredecessorRef: pred,
				SuccessorRef:   refs[t.ID],
				Visible:        r.Visible,
			})
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode clipboard: %w", err)
	}
	return data, nil
}

// Block is a decoded payload: tasks in pre-order with every stored field
// cleared, plus their hierarchy and relations by index.
type Block struct {
	ID    string
	Kind  string
	Tasks []*types.Task
	// Parents[i] is the index of the parent of Tasks[i], or -1 for the root
	Parents   []int
	Relations []Link
}

// Link is a relation between two block tasks, by index
type Link struct {
	Predecessor int
	Successor   int
	Visible     bool
}

// Decode validates a payload and prepares its tasks for re-insertion as new
// entities: identity, placement, schedule and bookkeeping fields are cleared,
// status goes back to todo and the remaining work to the original estimate.
func Decode(data []byte) (*Block, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Format != Format {
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidPayload, p.Format)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPayload, p.Version)
	}
	if len(p.Tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks", ErrInvalidPayload)
	}

	b := &Block{ID: p.ID, Kind: p.Kind}
	index := make(map[int]int, len(p.Tasks))
	for i, e := range p.Tasks {
		if e.Task == nil {
			return nil, fmt.Errorf("%w: entry %d has no task", ErrInvalidPayload, e.Ref)
		}
		if _, dup := index[e.Ref]; dup {
			return nil, fmt.Errorf("%w: duplicate ref %d", ErrInvalidPayload, e.Ref)
		}

		parent := -1
		switch {
		case i == 0 && e.ParentRef != nil:
			return nil, fmt.Errorf("%w: first entry cannot have a parent", ErrInvalidPayload)
		case i > 0 && e.ParentRef == nil:
			return nil, fmt.Errorf("%w: entry %d is outside the copied subtree", ErrInvalidPayload, e.Ref)
		case i > 0:
			pi, ok := index[*e.ParentRef]
			if !ok {
				return nil, fmt.Errorf("%w: entry %d references unknown parent %d", ErrInvalidPayload, e.Ref, *e.ParentRef)
			}
			if !b.Tasks[pi].IsStory() {
				return nil, fmt.Errorf("%w: entry %d has a %s parent", ErrInvalidPayload, e.Ref, b.Tasks[pi].Kind)
			}
			parent = pi
		}

		t := reset(e.Task)
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidPayload, e.Ref, err)
		}
		index[e.Ref] = i
		b.Tasks = append(b.Tasks, t)
		b.Parents = append(b.Parents, parent)
	}

	seen := make(map[Link]bool, len(p.Relations))
	for _, r := range p.Relations {
		pred, ok1 := index[r.PredecessorRef]
		succ, ok2 := index[r.SuccessorRef]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: relation %d -> %d references unknown tasks", ErrInvalidPayload, r.PredecessorRef, r.SuccessorRef)
		}
		if pred == succ {
			return nil, fmt.Errorf("%w: relation on %d references itself", ErrInvalidPayload, r.PredecessorRef)
		}
		key := Link{Predecessor: pred, Successor: succ}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate relation %d -> %d", ErrInvalidPayload, r.PredecessorRef, r.SuccessorRef)
		}
		seen[key] = true
		b.Relations = append(b.Relations, Link{Predecessor: pred, Successor: succ, Visible: r.Visible})
	}
	return b, nil
}

// Instantiate assigns IDs from nextID to the block tasks and links parents
// and relations through them. The result can be handed to
// tasklist.List.InsertBlock.
func (b *Block) Instantiate(sprintID int64, nextID func() int64) []*types.Task {
	out := make([]*types.Task, len(b.Tasks))
	for i, t := range b.Tasks {
		c := t.Clone()
		c.ID = nextID()
		c.SprintID = sprintID
		if p := b.Parents[i]; p >= 0 {
			c.ParentID = types.Int64(out[p].ID)
		}
		out[i] = c
	}
	for _, l := range b.Relations {
		succ := out[l.Successor]
		succ.Predecessors = append(succ.Predecessors, &types.Relation{
			SuccessorID:   succ.ID,
			PredecessorID: out[l.Predecessor].ID,
			Visible:       l.Visible,
		})
	}
	return out
}

func reset(src *types.Task) *types.Task {
	t := src.Clone()
	t.ID = 0
	t.SprintID = 0
	t.ParentID = nil
	t.OrderID = 0
	t.Start = nil
	t.Finish = nil
	t.TimeSpent = 0
	t.Progress = 0
	t.Impediment = false
	t.Status = types.TaskTodo
	t.Remaining = t.OriginalEstimate
	t.Predecessors = nil
	t.CreatedAt = time.Time{}
	t.UpdatedAt = time.Time{}
	return t
}
