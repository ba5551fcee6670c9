package planner

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdallabushnaq/kassandra/internal/tasklist"
	"github.com/abdallabushnaq/kassandra/internal/types"
)

// ExportFormat identifies product documents
const ExportFormat = "kassandra/product/v1"

// ProductDoc is the portable form of a product with its whole catalog.
// Users are referenced by name and tasks by their position in the sprint.
type ProductDoc struct {
	Format   string       `yaml:"format"`
	Name     string       `yaml:"name"`
	Versions []VersionDoc `yaml:"versions,omitempty"`
}

// VersionDoc is a version in a product document
type VersionDoc struct {
	Name     string       `yaml:"name"`
	Features []FeatureDoc `yaml:"features,omitempty"`
}

// FeatureDoc is a feature in a product document
type FeatureDoc struct {
	Name    string      `yaml:"name"`
	Sprints []SprintDoc `yaml:"sprints,omitempty"`
}

// SprintDoc is a sprint with its tasks in list order
type SprintDoc struct {
	Name        string             `yaml:"name"`
	Status      types.SprintStatus `yaml:"status"`
	Start       *time.Time         `yaml:"start,omitempty"`
	ReleaseDate *time.Time         `yaml:"release_date,omitempty"`
	Tasks       []TaskDoc          `yaml:"tasks,omitempty"`
}

// TaskDoc is a task in a sprint document. Ref is the 1-based position of
// the task in the sprint; Parent and Predecessors refer to other refs.
type TaskDoc struct {
	Ref              int              `yaml:"ref"`
	Parent           int              `yaml:"parent,omitempty"`
	Name             string           `yaml:"name"`
	Kind             types.TaskKind   `yaml:"kind"`
	Status           types.TaskStatus `yaml:"status"`
	Resource         string           `yaml:"resource,omitempty"`
	OriginalEstimate int              `yaml:"original_estimate,omitempty"`
	MinEstimate      int              `yaml:"min_estimate,omitempty"`
	MaxEstimate      int              `yaml:"max_estimate,omitempty"`
	Remaining        int              `yaml:"remaining,omitempty"`
	TimeSpent        int              `yaml:"time_spent,omitempty"`
	FixedStart       *time.Time       `yaml:"fixed_start,omitempty"`
	Impediment       bool             `yaml:"impediment,omitempty"`
	Notes            string           `yaml:"notes,omitempty"`
	Predecessors     []int            `yaml:"predecessors,omitempty"`
}

// ExportProduct writes a product with its versions, features, sprints and
// tasks as YAML
func (p *Planner) ExportProduct(ctx context.Context, actor *types.User, productID int64, w io.Writer) error {
	doc, err := p.productDoc(ctx, actor, productID)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}
	return enc.Close()
}

func (p *Planner) productDoc(ctx context.Context, actor *types.User, productID int64) (*ProductDoc, error) {
	prod, err := p.requireProduct(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	doc := &ProductDoc{Format: ExportFormat, Name: prod.Name}
	versions, err := p.store.ListVersions(ctx, productID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		vd := VersionDoc{Name: v.Name}
		features, err := p.store.ListFeatures(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range features {
			fd := FeatureDoc{Name: f.Name}
			sprints, err := p.store.ListSprints(ctx, f.ID)
			if err != nil {
				return nil, err
			}
			for _, sp := range sprints {
				tasks, err := p.store.ListTasks(ctx, sp.ID)
				if err != nil {
					return nil, err
				}
				fd.Sprints = append(fd.Sprints, sprintDoc(sp, tasks, names))
			}
			vd.Features = append(vd.Features, fd)
		}
		doc.Versions = append(doc.Versions, vd)
	}
	return doc, nil
}

func sprintDoc(sp *types.Sprint, tasks []*types.Task, names map[int64]string) SprintDoc {
	sd := SprintDoc{Name: sp.Name, Status: sp.Status, Start: sp.Start, ReleaseDate: sp.ReleaseDate}
	refs := make(map[int64]int, len(tasks))
	for i, t := range tasks {
		refs[t.ID] = i + 1
	}
	for _, t := range tasks {
		td := TaskDoc{
			Ref:              refs[t.ID],
			Name:             t.Name,
			Kind:             t.Kind,
			Status:           t.Status,
			OriginalEstimate: t.OriginalEstimate,
			MinEstimate:      t.MinEstimate,
			MaxEstimate:      t.MaxEstimate,
			Remaining:        t.Remaining,
			TimeSpent:        t.TimeSpent,
			FixedStart:       t.FixedStart,
			Impediment:       t.Impediment,
			Notes:            t.Notes,
		}
		if t.ParentID != nil {
			td.Parent = refs[*t.ParentID]
		}
		if t.ResourceID != nil {
			td.Resource = names[*t.ResourceID]
		}
		for _, r := range t.Predecessors {
			if ref, ok := refs[r.PredecessorID]; ok {
				td.Predecessors = append(td.Predecessors, ref)
			}
		}
		sd.Tasks = append(sd.Tasks, td)
	}
	return sd
}

// ImportResult summarizes an import
type ImportResult struct {
	Product  *types.Product `json:"product"`
	Sprints  int            `json:"sprints"`
	Tasks    int            `json:"tasks"`
	Warnings []string       `json:"warnings,omitempty"`
}

// ImportProduct reads a product document and creates it as a new product.
// A non-empty name overrides the one in the document. Resources are matched
// by user name; unknown users leave their tasks unassigned.
//
// Every sprint is built in memory before anything is written, and a product
// whose import fails halfway is removed again.
func (p *Planner) ImportProduct(ctx context.Context, actor *types.User, r io.Reader, name string) (*ImportResult, error) {
	var doc ProductDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode product: %v", ErrInvalidArgument, err)
	}
	if doc.Format != ExportFormat {
		return nil, fmt.Errorf("%w: unknown document format %q", ErrInvalidArgument, doc.Format)
	}
	if name != "" {
		doc.Name = name
	}
	if err := doc.validate(); err != nil {
		return nil, invalid(err)
	}

	users, err := p.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(users))
	for _, u := range users {
		byName[u.Name] = u.ID
	}

	res := &ImportResult{}
	for _, vd := range doc.Versions {
		for _, fd := range vd.Features {
			for _, sd := range fd.Sprints {
				// refs double as IDs so errors name document positions
				l, err := tasklist.New(nil)
				if err != nil {
					return nil, err
				}
				warnings, err := sd.build(l, 0, byName, func(ref int) int64 { return int64(ref) })
				if err != nil {
					return nil, translate(err)
				}
				res.Warnings = append(res.Warnings, warnings...)
			}
		}
	}

	prod, err := p.CreateProduct(ctx, actor, doc.Name)
	if err != nil {
		return nil, err
	}
	res.Product = prod
	if err := p.importCatalog(ctx, actor, prod.ID, &doc, byName, res); err != nil {
		if derr := p.store.DeleteProduct(ctx, prod.ID, actor.Name); derr != nil {
			p.log.Errorw("failed to remove partially imported product", "product", prod.ID, "error", derr)
		}
		return nil, err
	}
	p.log.Infow("product imported", "product", prod.ID, "sprints", res.Sprints, "tasks", res.Tasks, "warnings", len(res.Warnings))
	return res, nil
}

func (p *Planner) importCatalog(ctx context.Context, actor *types.User, productID int64, doc *ProductDoc, byName map[string]int64, res *ImportResult) error {
	for _, vd := range doc.Versions {
		v, err := p.CreateVersion(ctx, actor, productID, vd.Name)
		if err != nil {
			return err
		}
		for _, fd := range vd.Features {
			f, err := p.CreateFeature(ctx, actor, v.ID, fd.Name)
			if err != nil {
				return err
			}
			for _, sd := range fd.Sprints {
				if err := p.importSprint(ctx, actor, f.ID, sd, byName, res); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (p *Planner) importSprint(ctx context.Context, actor *types.User, featureID int64, sd SprintDoc, byName map[string]int64, res *ImportResult) error {
	sp, err := p.CreateSprint(ctx, actor, featureID, SprintInput{Name: sd.Name, Start: sd.Start, ReleaseDate: sd.ReleaseDate})
	if err != nil {
		return err
	}
	res.Sprints++

	// the sprint is brand new, so the lifecycle rules do not apply yet
	_, err = p.edit(ctx, actor, sp.ID, "import_sprint", editOptions{}, func(st *state) error {
		if _, err := sd.build(st.list, sp.ID, byName, func(int) int64 { return st.nextTempID() }); err != nil {
			return err
		}
		if sd.Status.IsValid() {
			st.sprint.Status = sd.Status
		}
		res.Tasks += len(sd.Tasks)
		return nil
	})
	return err
}

// build inserts the tasks and dependencies of the sprint into l. id hands
// out the ID of the task with the given ref. Users missing from byName are
// reported as warnings.
func (sd *SprintDoc) build(l *tasklist.List, sprintID int64, byName map[string]int64, id func(ref int) int64) ([]string, error) {
	var warnings []string
	ids := make(map[int]int64, len(sd.Tasks))
	for _, td := range sd.Tasks {
		t := &types.Task{
			ID:               id(td.Ref),
			SprintID:         sprintID,
			Name:             td.Name,
			Kind:             td.Kind,
			Status:           td.Status,
			OriginalEstimate: td.OriginalEstimate,
			MinEstimate:      td.MinEstimate,
			MaxEstimate:      td.MaxEstimate,
			Remaining:        td.Remaining,
			TimeSpent:        td.TimeSpent,
			FixedStart:       td.FixedStart,
			Impediment:       td.Impediment,
			Notes:            td.Notes,
		}
		if t.Status == "" {
			t.Status = types.TaskTodo
		}
		if td.Resource != "" {
			if uid, ok := byName[td.Resource]; ok {
				t.ResourceID = types.Int64(uid)
			} else {
				warnings = append(warnings, fmt.Sprintf("sprint %q task %q: unknown user %q, left unassigned", sd.Name, td.Name, td.Resource))
			}
		}
		if err := t.Validate(); err != nil {
			return nil, invalid(fmt.Errorf("sprint %q task %d: %w", sd.Name, td.Ref, err))
		}
		var parent *int64
		if td.Parent != 0 {
			parent = types.Int64(ids[td.Parent])
		}
		if err := l.Insert(t, parent, 0); err != nil {
			return nil, fmt.Errorf("sprint %q task %d: %w", sd.Name, td.Ref, err)
		}
		ids[td.Ref] = t.ID
	}
	for _, td := range sd.Tasks {
		for _, pred := range td.Predecessors {
			if _, err := l.AddDependency(ids[pred], ids[td.Ref], true); err != nil {
				return nil, fmt.Errorf("sprint %q dependency %d -> %d: %w", sd.Name, pred, td.Ref, err)
			}
		}
	}
	return warnings, nil
}

// validate checks the references inside the document before anything is
// written
func (d *ProductDoc) validate() error {
	if d.Name == "" {
		return fmt.Errorf("product name is required")
	}
	for _, v := range d.Versions {
		for _, f := range v.Features {
			for _, s := range f.Sprints {
				if err := s.validate(); err != nil {
					return fmt.Errorf("sprint %q: %w", s.Name, err)
				}
			}
		}
	}
	return nil
}

func (s *SprintDoc) validate() error {
	if s.Status != "" && !s.Status.IsValid() {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	seen := make(map[int]bool, len(s.Tasks))
	for i, t := range s.Tasks {
		if t.Ref != i+1 {
			return fmt.Errorf("task %q has ref %d, expected %d", t.Name, t.Ref, i+1)
		}
		if t.Parent != 0 && !seen[t.Parent] {
			return fmt.Errorf("task %d has parent %d which does not precede it", t.Ref, t.Parent)
		}
		for _, pred := range t.Predecessors {
			if pred < 1 || pred > len(s.Tasks) {
				return fmt.Errorf("task %d depends on unknown task %d", t.Ref, pred)
			}
		}
		seen[t.Ref] = true
	}
	return nil
}
