package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdallabushnaq/kassandra/internal/types"
)

// ListProducts returns the products visible to the actor
func (p *Planner) ListProducts(ctx context.Context, actor *types.User) ([]*types.Product, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	all, err := p.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Admin {
		return all, nil
	}
	var out []*types.Product
	for _, prod := range all {
		ok, err := p.store.HasAccess(ctx, prod.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, prod)
		}
	}
	return out, nil
}

// GetProduct returns a product the actor can access
func (p *Planner) GetProduct(ctx context.Context, actor *types.User, id int64) (*types.Product, error) {
	return p.requireProduct(ctx, actor, id)
}

// CreateProduct adds a product and grants the creator access to it
func (p *Planner) CreateProduct(ctx context.Context, actor *types.User, name string) (*types.Product, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	prod := &types.Product{Name: name}
	if err := prod.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := p.store.CreateProduct(ctx, prod, actor.Name); err != nil {
		return nil, translate(err)
	}
	if err := p.store.GrantAccess(ctx, &types.ACLEntry{ProductID: prod.ID, UserID: types.Int64(actor.ID)}, actor.Name); err != nil {
		return nil, translate(err)
	}
	p.log.Infow("product created", "product", prod.ID, "name", prod.Name, "actor", actor.Name)
	return prod, nil
}

// RenameProduct changes a product's name
func (p *Planner) RenameProduct(ctx context.Context, actor *types.User, id int64, name string) (*types.Product, error) {
	prod, err := p.requireProduct(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	prod.Name = name
	if err := prod.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := p.store.UpdateProduct(ctx, prod, actor.Name); err != nil {
		return nil, translate(err)
	}
	return prod, nil
}

// DeleteProduct removes a product with its whole catalog subtree
func (p *Planner) DeleteProduct(ctx context.Context, actor *types.User, id int64) error {
	if _, err := p.requireProduct(ctx, actor, id); err != nil {
		return err
	}
	return translate(p.store.DeleteProduct(ctx, id, actor.Name))
}

// ListACL returns the access entries of a product
func (p *Planner) ListACL(ctx context.Context, actor *types.User, productID int64) ([]*types.ACLEntry, error) {
	if _, err := p.requireProduct(ctx, actor, productID); err != nil {
		return nil, err
	}
	return p.store.ListACL(ctx, productID)
}

// GrantAccess adds an access entry. Anyone with access may share the product.
func (p *Planner) GrantAccess(ctx context.Context, actor *types.User, entry *types.ACLEntry) error {
	if err := entry.Validate(); err != nil {
		return invalid(err)
	}
	if _, err := p.requireProduct(ctx, actor, entry.ProductID); err != nil {
		return err
	}
	if err := p.checkGrantee(ctx, entry); err != nil {
		return err
	}
	return translate(p.store.GrantAccess(ctx, entry, actor.Name))
}

// RevokeAccess removes an access entry
func (p *Planner) RevokeAccess(ctx context.Context, actor *types.User, entry *types.ACLEntry) error {
	if err := entry.Validate(); err != nil {
		return invalid(err)
	}
	if _, err := p.requireProduct(ctx, actor, entry.ProductID); err != nil {
		return err
	}
	return translate(p.store.RevokeAccess(ctx, entry, actor.Name))
}

func (p *Planner) checkGrantee(ctx context.Context, entry *types.ACLEntry) error {
	if entry.UserID != nil {
		u, err := p.store.GetUser(ctx, *entry.UserID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %d: %w", *entry.UserID, ErrNotFound)
		}
		return nil
	}
	g, err := p.store.GetGroup(ctx, *entry.GroupID)
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("group %d: %w", *entry.GroupID, ErrNotFound)
	}
	return nil
}

// ListVersions returns the versions of a product, semantically ordered
func (p *Planner) ListVersions(ctx context.Context, actor *types.User, productID int64) ([]*types.Version, error) {
	if _, err := p.requireProduct(ctx, actor, productID); err != nil {
		return nil, err
	}
	return p.store.ListVersions(ctx, productID)
}

// CreateVersion adds a version to a product
func (p *Planner) CreateVersion(ctx context.Context, actor *types.User, productID int64, name string) (*types.Version, error) {
	if _, err := p.requireProduct(ctx, actor, productID); err != nil {
		return nil, err
	}
	v := &types.Version{ProductID: productID, Name: name}
	if err := v.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := p.store.CreateVersion(ctx, v, actor.Name); err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func (p *Planner) requireVersion(ctx context.Context, actor *types.User, id int64) (*types.Version, error) {
	v, err := p.store.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("version %d: %w", id, ErrNotFound)
	}
	if _, err := p.requireProduct(ctx, actor, v.ProductID); err != nil {
		return nil, err
	}
	return v, nil
}

// RenameVersion changes a version's name
func (p *Planner) RenameVersion(ctx context.Context, actor *types.User, id int64, name string) (*types.Version, error) {
	v, err := p.requireVersion(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	v.Name = name
	if err := v.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := p.store.UpdateVersion(ctx, v, actor.Name); err != nil {
		return nil, translate(err)
	}
	return v, nil
}

// DeleteVersion removes a version with its features and sprints
func (p *Planner) DeleteVersion(ctx context.Context, actor *types.User, id int64) error {
	if _, err := p.requireVersion(ctx, actor, id); err != nil {
		return err
	}
	return translate(p.store.DeleteVersion(ctx, id, actor.Name))
}

// ListFeatures returns the features of a version
func (p *Planner) ListFeatures(ctx context.Context, actor *types.User, versionID int64) ([]*types.Feature, error) {
	if _, err := p.requireVersion(ctx, actor, versionID); err != nil {
		return nil, err
	}
	return p.store.ListFeatures(ctx, versionID)
}

// CreateFeature adds a feature to a version
func (p *Planner) CreateFeature(ctx context.Context, actor *types.User, versionID int64, name string) (*types.Feature, error) {
	if _, err := p.requireVersion(ctx, actor, versionID); err != nil {
		return nil, err
	}
	f := &types.Feature{VersionID: versionID, Name: name}
	if err := f.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := p.store.CreateFeature(ctx, f, actor.Name); err != nil {
		return nil, translate(err)
	}
	return f, nil
}

func (p *Planner) requireFeature(ctx context.Context, actor *types.User, id int64) (*types.Feature, error) {
	f, err := p.store.GetFeature(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("feature %d: %w", id, ErrNotFound)
	}
	if _, err := p.requireVersion(ctx, actor, f.VersionID); err != nil {
		return nil, err
	}
	return f, nil
}

// RenameFeature changes a feature's name
func (p *Planner) RenameFeature(ctx context.Context, actor *types.User, id int64, name string) (*types.Feature, error) {
	f, err := p.requireFeature(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	f.Name = name
	if err := f.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := p.store.UpdateFeature(ctx, f, actor.Name); err != nil {
		return nil, translate(err)
	}
	return f, nil
}

// DeleteFeature removes a feature with its sprints
func (p *Planner) DeleteFeature(ctx context.Context, actor *types.User, id int64) error {
	if _, err := p.requireFeature(ctx, actor, id); err != nil {
		return err
	}
	return translate(p.store.DeleteFeature(ctx, id, actor.Name))
}

// ListSprints returns the sprints of a feature
func (p *Planner) ListSprints(ctx context.Context, actor *types.User, featureID int64) ([]*types.Sprint, error) {
	if _, err := p.requireFeature(ctx, actor, featureID); err != nil {
		return nil, err
	}
	return p.store.ListSprints(ctx, featureID)
}

// SprintInput describes a new sprint
type SprintInput struct {
	Name        string     `json:"name" yaml:"name"`
	Start       *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty" yaml:"release_date,omitempty"`
}

// CreateSprint adds a sprint to a feature
func (p *Planner) CreateSprint(ctx context.Context, actor *types.User, featureID int64, in SprintInput) (*types.Sprint, error) {
	if _, err := p.requireFeature(ctx, actor, featureID); err != nil {
		return nil, err
	}
	sp := &types.Sprint{
		FeatureID:   featureID,
		Name:        in.Name,
		Status:      types.SprintCreated,
		Start:       in.Start,
		ReleaseDate: in.ReleaseDate,
	}
	if err := sp.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := p.store.CreateSprint(ctx, sp, actor.Name); err != nil {
		return nil, translate(err)
	}
	return sp, nil
}

// GetSprint returns a sprint without its tasks
func (p *Planner) GetSprint(ctx context.Context, actor *types.User, id int64) (*types.Sprint, error) {
	if err := p.requireSprintAccess(ctx, actor, id); err != nil {
		return nil, err
	}
	return p.store.GetSprint(ctx, id)
}

// DeleteSprint removes a sprint with its tasks
func (p *Planner) DeleteSprint(ctx context.Context, actor *types.User, id int64) error {
	if err := p.requireSprintAccess(ctx, actor, id); err != nil {
		return err
	}
	unlock := p.lockSprint(id)
	defer unlock()
	return translate(p.store.DeleteSprint(ctx, id, actor.Name))
}

// Users

// ListUsers returns every user; any known user may see the directory
func (p *Planner) ListUsers(ctx context.Context, actor *types.User) ([]*types.User, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	return p.store.ListUsers(ctx)
}

// GetUser returns one user
func (p *Planner) GetUser(ctx context.Context, actor *types.User, id int64) (*types.User, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	u, err := p.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

// CreateUser adds a user. Only administrators may do so, except for the
// very first user, who becomes an administrator.
func (p *Planner) CreateUser(ctx context.Context, actor *types.User, u *types.User) error {
	existing, err := p.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	actorName := "system"
	if len(existing) == 0 {
		u.Admin = true
	} else {
		if err := requireAdmin(actor); err != nil {
			return err
		}
		actorName = actor.Name
	}
	if u.Availability == 0 {
		u.Availability = 1
	}
	if err := u.Validate(); err != nil {
		return invalid(err)
	}
	if err := p.store.CreateUser(ctx, u, actorName); err != nil {
		return translate(err)
	}
	p.log.Infow("user created", "user", u.ID, "name", u.Name, "admin", u.Admin, "actor", actorName)
	return nil
}

// UpdateUser changes a user. Users may edit themselves but only
// administrators may change the admin flag or other users.
func (p *Planner) UpdateUser(ctx context.Context, actor *types.User, u *types.User) error {
	if actor == nil {
		return ErrAccessDenied
	}
	current, err := p.store.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("user %d: %w", u.ID, ErrNotFound)
	}
	if !actor.Admin && (actor.ID != u.ID || u.Admin != current.Admin) {
		return fmt.Errorf("%w: administrator required", ErrAccessDenied)
	}
	if err := u.Validate(); err != nil {
		return invalid(err)
	}
	return translate(p.store.UpdateUser(ctx, u, actor.Name))
}

// DeleteUser removes a user; their tasks become unassigned
func (p *Planner) DeleteUser(ctx context.Context, actor *types.User, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if actor.ID == id {
		return fmt.Errorf("%w: users cannot delete themselves", ErrInvalidArgument)
	}
	return translate(p.store.DeleteUser(ctx, id, actor.Name))
}

func requireSelfOrAdmin(actor *types.User, userID int64) error {
	if actor == nil || (!actor.Admin && actor.ID != userID) {
		return fmt.Errorf("%w: only the user or an administrator may do this", ErrAccessDenied)
	}
	return nil
}

// ListOffDays returns a user's off days
func (p *Planner) ListOffDays(ctx context.Context, actor *types.User, userID int64) ([]*types.OffDay, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	return p.store.ListOffDays(ctx, userID)
}

// AddOffDay records an absence
func (p *Planner) AddOffDay(ctx context.Context, actor *types.User, o *types.OffDay) error {
	if err := requireSelfOrAdmin(actor, o.UserID); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return invalid(err)
	}
	return translate(p.store.AddOffDay(ctx, o, actor.Name))
}

// DeleteOffDay removes an absence
func (p *Planner) DeleteOffDay(ctx context.Context, actor *types.User, userID, id int64) error {
	if err := requireSelfOrAdmin(actor, userID); err != nil {
		return err
	}
	days, err := p.store.ListOffDays(ctx, userID)
	if err != nil {
		return err
	}
	for _, d := range days {
		if d.ID == id {
			return translate(p.store.DeleteOffDay(ctx, id, actor.Name))
		}
	}
	return fmt.Errorf("off day %d of user %d: %w", id, userID, ErrNotFound)
}

// Groups

// ListGroups returns every group
func (p *Planner) ListGroups(ctx context.Context, actor *types.User) ([]*types.UserGroup, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	return p.store.ListGroups(ctx)
}

// GetGroup returns one group with its members
func (p *Planner) GetGroup(ctx context.Context, actor *types.User, id int64) (*types.UserGroup, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	g, err := p.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	return g, nil
}

// CreateGroup adds a group
func (p *Planner) CreateGroup(ctx context.Context, actor *types.User, g *types.UserGroup) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return invalid(err)
	}
	return translate(p.store.CreateGroup(ctx, g, actor.Name))
}

// UpdateGroup renames a group and replaces its members
func (p *Planner) UpdateGroup(ctx context.Context, actor *types.User, g *types.UserGroup) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return invalid(err)
	}
	return translate(p.store.UpdateGroup(ctx, g, actor.Name))
}

// AddGroupMember adds a user to a group
func (p *Planner) AddGroupMember(ctx context.Context, actor *types.User, groupID, userID int64) (*types.UserGroup, error) {
	return p.changeMembers(ctx, actor, groupID, func(g *types.UserGroup) {
		if !g.HasMember(userID) {
			g.MemberIDs = append(g.MemberIDs, userID)
		}
	})
}

// RemoveGroupMember removes a user from a group
func (p *Planner) RemoveGroupMember(ctx context.Context, actor *types.User, groupID, userID int64) (*types.UserGroup, error) {
	return p.changeMembers(ctx, actor, groupID, func(g *types.UserGroup) {
		kept := g.MemberIDs[:0]
		for _, id := range g.MemberIDs {
			if id != userID {
				kept = append(kept, id)
			}
		}
		g.MemberIDs = kept
	})
}

func (p *Planner) changeMembers(ctx context.Context, actor *types.User, groupID int64, fn func(*types.UserGroup)) (*types.UserGroup, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	g, err := p.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
	}
	fn(g)
	if err := p.store.UpdateGroup(ctx, g, actor.Name); err != nil {
		return nil, translate(err)
	}
	return g, nil
}

// DeleteGroup removes a group and its access grants
func (p *Planner) DeleteGroup(ctx context.Context, actor *types.User, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	return translate(p.store.DeleteGroup(ctx, id, actor.Name))
}

// Statistics returns catalog-wide counts
func (p *Planner) Statistics(ctx context.Context, actor *types.User) (*types.Statistics, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	return p.store.GetStatistics(ctx)
}

// Events returns the audit trail. Non-administrators only see the history
// of one entity at a time.
func (p *Planner) Events(ctx context.Context, actor *types.User, filter types.EventFilter) ([]*types.Event, error) {
	if actor == nil {
		return nil, ErrAccessDenied
	}
	if !actor.Admin && (filter.EntityType == "" || filter.EntityID == 0) {
		return nil, fmt.Errorf("%w: administrator required for the full audit trail", ErrAccessDenied)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return p.store.GetEvents(ctx, filter)
}

// PruneEvents drops audit events older than cutoff
func (p *Planner) PruneEvents(ctx context.Context, cutoff time.Time) (int, error) {
	if cutoff.IsZero() {
		return 0, nil
	}
	n, err := p.store.PruneEvents(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.log.Infow("audit events pruned", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
