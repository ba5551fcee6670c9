package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Product is the root of the catalog
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the product has valid field values
func (p *Product) Validate() error {
	return validateName("product", p.Name, 200)
}

// Version is a release line of a product
type Version struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the version has valid field values
func (v *Version) Validate() error {
	if v.ProductID <= 0 {
		return fmt.Errorf("version product_id is required")
	}
	return validateName("version", v.Name, 100)
}

// canonicalSemver returns the name in "vMAJOR.MINOR.PATCH" form, or "" when
// the name is not a semantic version. A missing leading "v" is tolerated.
func canonicalSemver(name string) string {
	if !strings.HasPrefix(name, "v") {
		name = "v" + name
	}
	if !semver.IsValid(name) {
		return ""
	}
	return name
}

// CompareVersionNames orders version names semantically when both parse as
// semver and lexically otherwise. Semver names sort before free-form names.
func CompareVersionNames(a, b string) int {
	sa, sb := canonicalSemver(a), canonicalSemver(b)
	switch {
	case sa != "" && sb != "":
		if c := semver.Compare(sa, sb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case sa != "":
		return -1
	case sb != "":
		return 1
	}
	return strings.Compare(a, b)
}

// SortVersions sorts versions in place by CompareVersionNames
func SortVersions(versions []*Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersionNames(versions[i].Name, versions[j].Name) < 0
	})
}

// Feature groups the sprints that deliver one capability of a version
type Feature struct {
	ID        int64     `json:"id"`
	VersionID int64     `json:"version_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the feature has valid field values
func (f *Feature) Validate() error {
	if f.VersionID <= 0 {
		return fmt.Errorf("feature version_id is required")
	}
	return validateName("feature", f.Name, 200)
}

// ACLEntry grants a user or a group access to a product.
// Exactly one of UserID and GroupID is set.
type ACLEntry struct {
	ProductID int64     `json:"product_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	GroupID   *int64    `json:"group_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the entry references exactly one grantee
func (a *ACLEntry) Validate() error {
	if a.ProductID <= 0 {
		return fmt.Errorf("acl product_id is required")
	}
	if (a.UserID == nil) == (a.GroupID == nil) {
		return fmt.Errorf("acl entry must reference exactly one of user or group")
	}
	return nil
}

// String renders the grantee, e.g. "user:3" or "group:7"
func (a *ACLEntry) String() string {
	if a.UserID != nil {
		return fmt.Sprintf("user:%d", *a.UserID)
	}
	if a.GroupID != nil {
		return fmt.Sprintf("group:%d", *a.GroupID)
	}
	return "invalid"
}
