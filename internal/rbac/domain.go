package rbac

import (
	"encoding/json"
	"fmt"
)

// Assignment grants a role within a set of departments. Primary is
// informational and does not affect permission computation.
type Assignment struct {
	Role        RoleID         `json:"role"`
	Departments []DepartmentID `json:"departments"`
	Primary     bool           `json:"isPrimary,omitempty"`
}

// InDepartment reports whether the assignment covers dept.
func (a Assignment) InDepartment(dept DepartmentID) bool {
	for _, d := range a.Departments {
		if d == dept {
			return true
		}
	}
	return false
}

// Overrides replaces the computed action set of each module it names.
type Overrides map[Module]ActionSet

// Validate rejects modules outside the catalog.
func (o Overrides) Validate() error {
	for m := range o {
		if !m.Valid() {
			return fmt.Errorf("%w %q", ErrUnknownModule, m)
		}
	}
	return nil
}

// ParseOverrides converts a loosely typed module→actions map into Overrides.
func ParseOverrides(raw map[string][]string) (Overrides, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(Overrides, len(raw))
	for name, acts := range raw {
		m, err := ParseModule(name)
		if err != nil {
			return nil, err
		}
		set, err := ParseActionSet(acts)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", name, err)
		}
		out[m] = set
	}
	return out, nil
}

// Profile is the resolved allow-list. Every catalog module is present.
type Profile map[Module]ActionSet

// Allows reports whether the profile grants action on module.
func (p Profile) Allows(module Module, action Action) bool {
	return p[module].Has(action)
}

// MarshalJSON emits every module with its sorted action names, including
// modules with no access.
func (p Profile) MarshalJSON() ([]byte, error) {
	out := make(map[Module][]string, len(p))
	for m, set := range p {
		out[m] = set.Strings()
	}
	return json.Marshal(out)
}
