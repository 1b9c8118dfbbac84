package rbac

import (
	"fmt"
	"sort"
)

// RoleID identifies a role.
type RoleID string

// Built-in roles, lowest authority first.
const (
	RoleOperator RoleID = "operator"
	RolePlanner  RoleID = "planner"
	RoleManager  RoleID = "manager"
	RoleAdmin    RoleID = "admin"
)

// Role is a named authority level. Higher Rank means more authority.
type Role struct {
	ID    RoleID `json:"id"`
	Label string `json:"label"`
	Rank  int    `json:"rank"`
}

// Outranks reports whether r carries strictly more authority than other.
func (r Role) Outranks(other Role) bool {
	return r.Rank > other.Rank
}

// RoleCatalog is an immutable registry of roles, totally ordered by rank.
type RoleCatalog struct {
	byID    map[RoleID]Role
	ordered []Role
}

// NewRoleCatalog validates and indexes roles. IDs must be unique, ranks
// positive and distinct.
func NewRoleCatalog(roles ...Role) (RoleCatalog, error) {
	byID := make(map[RoleID]Role, len(roles))
	ranks := make(map[int]RoleID, len(roles))
	for _, role := range roles {
		if role.ID == "" {
			return RoleCatalog{}, fmt.Errorf("rbac: role id required")
		}
		if role.Rank <= 0 {
			return RoleCatalog{}, fmt.Errorf("rbac: role %q rank must be positive", role.ID)
		}
		if _, dup := byID[role.ID]; dup {
			return RoleCatalog{}, fmt.Errorf("rbac: duplicate role %q", role.ID)
		}
		if other, dup := ranks[role.Rank]; dup {
			return RoleCatalog{}, fmt.Errorf("rbac: roles %q and %q share rank %d", other, role.ID, role.Rank)
		}
		byID[role.ID] = role
		ranks[role.Rank] = role.ID
	}
	ordered := make([]Role, 0, len(byID))
	for _, role := range byID {
		ordered = append(ordered, role)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })
	return RoleCatalog{byID: byID, ordered: ordered}, nil
}

// Lookup returns the role with the given id.
func (c RoleCatalog) Lookup(id RoleID) (Role, bool) {
	role, ok := c.byID[id]
	return role, ok
}

// All returns every role ordered by ascending rank.
func (c RoleCatalog) All() []Role {
	out := make([]Role, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Highest returns the highest-ranked role among the assignments. Unknown
// roles are ignored.
func (c RoleCatalog) Highest(assignments []Assignment) (Role, bool) {
	var (
		best  Role
		found bool
	)
	for _, a := range assignments {
		role, ok := c.byID[a.Role]
		if !ok {
			continue
		}
		if !found || role.Outranks(best) {
			best, found = role, true
		}
	}
	return best, found
}

// DepartmentID identifies a department.
type DepartmentID string

// Built-in departments.
const (
	DeptProduction  DepartmentID = "production"
	DeptSales       DepartmentID = "sales"
	DeptProcurement DepartmentID = "procurement"
	DeptWarehouse   DepartmentID = "warehouse"
	DeptFinance     DepartmentID = "finance"
	DeptEngineering DepartmentID = "engineering"
	DeptManagement  DepartmentID = "management"
)

// Department is an organisational scope. Departments are not ordered.
type Department struct {
	ID    DepartmentID `json:"id"`
	Label string       `json:"label"`
}

// DepartmentCatalog is an immutable registry of departments.
type DepartmentCatalog struct {
	byID    map[DepartmentID]Department
	ordered []Department
}

// NewDepartmentCatalog validates and indexes departments.
func NewDepartmentCatalog(depts ...Department) (DepartmentCatalog, error) {
	byID := make(map[DepartmentID]Department, len(depts))
	ordered := make([]Department, 0, len(depts))
	for _, d := range depts {
		if d.ID == "" {
			return DepartmentCatalog{}, fmt.Errorf("rbac: department id required")
		}
		if _, dup := byID[d.ID]; dup {
			return DepartmentCatalog{}, fmt.Errorf("rbac: duplicate department %q", d.ID)
		}
		byID[d.ID] = d
		ordered = append(ordered, d)
	}
	return DepartmentCatalog{byID: byID, ordered: ordered}, nil
}

// Lookup returns the department with the given id.
func (c DepartmentCatalog) Lookup(id DepartmentID) (Department, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// All returns every department in declaration order.
func (c DepartmentCatalog) All() []Department {
	out := make([]Department, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// DefaultRoles is the process-wide role catalog.
var DefaultRoles = mustRoles(
	Role{ID: RoleOperator, Label: "Operator", Rank: 10},
	Role{ID: RolePlanner, Label: "Planner", Rank: 20},
	Role{ID: RoleManager, Label: "Manager", Rank: 30},
	Role{ID: RoleAdmin, Label: "Administrator", Rank: 40},
)

// DefaultDepartments is the process-wide department catalog.
var DefaultDepartments = mustDepartments(
	Department{ID: DeptProduction, Label: "Production"},
	Department{ID: DeptSales, Label: "Sales"},
	Department{ID: DeptProcurement, Label: "Procurement"},
	Department{ID: DeptWarehouse, Label: "Warehouse"},
	Department{ID: DeptFinance, Label: "Finance"},
	Department{ID: DeptEngineering, Label: "Engineering"},
	Department{ID: DeptManagement, Label: "Management"},
)

func mustRoles(roles ...Role) RoleCatalog {
	c, err := NewRoleCatalog(roles...)
	if err != nil {
		panic(err)
	}
	return c
}

func mustDepartments(depts ...Department) DepartmentCatalog {
	c, err := NewDepartmentCatalog(depts...)
	if err != nil {
		panic(err)
	}
	return c
}
