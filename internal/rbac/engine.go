package rbac

import "fmt"

// Options narrows or adjusts a profile computation. The zero value computes
// over every assignment without overrides.
type Options struct {
	// Role keeps only assignments of this role when set.
	Role RoleID
	// Department keeps only assignments whose departments include it when set.
	Department DepartmentID
	// Overrides replaces the computed set for every module it names.
	Overrides Overrides
}

// Engine resolves assignments into permission profiles. It holds only
// read-only tables and is safe for concurrent use.
type Engine struct {
	roles       RoleCatalog
	departments DepartmentCatalog
	matrix      Matrix
}

// NewEngine validates the matrix against the catalogs.
func NewEngine(roles RoleCatalog, departments DepartmentCatalog, matrix Matrix) (*Engine, error) {
	if err := matrix.validate(roles); err != nil {
		return nil, err
	}
	return &Engine{roles: roles, departments: departments, matrix: matrix}, nil
}

// DefaultEngine builds an engine over the stock catalogs and matrix.
func DefaultEngine() *Engine {
	e, err := NewEngine(DefaultRoles, DefaultDepartments, DefaultMatrix())
	if err != nil {
		panic(err)
	}
	return e
}

// Roles exposes the role catalog.
func (e *Engine) Roles() RoleCatalog { return e.roles }

// Departments exposes the department catalog.
func (e *Engine) Departments() DepartmentCatalog { return e.departments }

// BuildProfile unions the matrix grants of every assignment that survives the
// filters, then applies overrides. The result covers every module.
func (e *Engine) BuildProfile(assignments []Assignment, opts Options) (Profile, error) {
	if err := e.check(assignments, opts); err != nil {
		return nil, err
	}
	profile := make(Profile, len(modules))
	for _, m := range modules {
		profile[m] = 0
	}
	for _, a := range assignments {
		if !opts.keeps(a) {
			continue
		}
		for m, set := range e.matrix[a.Role] {
			profile[m] = profile[m].Union(set)
		}
	}
	for m, set := range opts.Overrides {
		profile[m] = set
	}
	return profile, nil
}

// CanPerform reports whether the assignments allow action on module. It
// answers exactly as BuildProfile would, without building the profile.
func (e *Engine) CanPerform(assignments []Assignment, module Module, action Action, opts Options) (bool, error) {
	if !module.Valid() {
		return false, fmt.Errorf("%w %q", ErrUnknownModule, module)
	}
	bit, ok := action.bit()
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
	if err := e.check(assignments, opts); err != nil {
		return false, err
	}
	if set, ok := opts.Overrides[module]; ok {
		return set&bit != 0, nil
	}
	for _, a := range assignments {
		if opts.keeps(a) && e.matrix[a.Role][module]&bit != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) check(assignments []Assignment, opts Options) error {
	if opts.Role != "" {
		if _, ok := e.roles.Lookup(opts.Role); !ok {
			return fmt.Errorf("%w %q", ErrUnknownRole, opts.Role)
		}
	}
	if opts.Department != "" {
		if _, ok := e.departments.Lookup(opts.Department); !ok {
			return fmt.Errorf("%w %q", ErrUnknownDepartment, opts.Department)
		}
	}
	if err := opts.Overrides.Validate(); err != nil {
		return err
	}
	for _, a := range assignments {
		if _, ok := e.roles.Lookup(a.Role); !ok {
			return fmt.Errorf("%w %q", ErrUnknownRole, a.Role)
		}
		for _, d := range a.Departments {
			if _, ok := e.departments.Lookup(d); !ok {
				return fmt.Errorf("%w %q", ErrUnknownDepartment, d)
			}
		}
	}
	return nil
}

func (o Options) keeps(a Assignment) bool {
	if o.Role != "" && a.Role != o.Role {
		return false
	}
	if o.Department != "" && !a.InDepartment(o.Department) {
		return false
	}
	return true
}
