package rbac

import (
	"encoding/json"
	"fmt"
)

// Module is a functional area that access is gated per. Closed set.
type Module string

const (
	ModuleUsers      Module = "users"
	ModuleEmployees  Module = "employees"
	ModuleUnits      Module = "units"
	ModuleSuppliers  Module = "suppliers"
	ModuleCustomers  Module = "customers"
	ModuleParts      Module = "parts"
	ModuleProducts   Module = "products"
	ModuleCategories Module = "categories"
	ModuleMaterials  Module = "materials"
	ModuleFiles      Module = "files"
	ModuleSequences  Module = "sequences"
	ModuleQuotes     Module = "quotes"
	ModuleOrders     Module = "orders"
	ModuleInventory  Module = "inventory"
	ModuleProduction Module = "production"
)

var modules = [...]Module{
	ModuleUsers,
	ModuleEmployees,
	ModuleUnits,
	ModuleSuppliers,
	ModuleCustomers,
	ModuleParts,
	ModuleProducts,
	ModuleCategories,
	ModuleMaterials,
	ModuleFiles,
	ModuleSequences,
	ModuleQuotes,
	ModuleOrders,
	ModuleInventory,
	ModuleProduction,
}

// Modules returns every module in catalog order.
func Modules() []Module {
	out := make([]Module, len(modules))
	copy(out, modules[:])
	return out
}

// Valid reports whether m belongs to the catalog.
func (m Module) Valid() bool {
	for _, known := range modules {
		if known == m {
			return true
		}
	}
	return false
}

// ParseModule converts s into a Module.
func ParseModule(s string) (Module, error) {
	m := Module(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownModule, s)
	}
	return m, nil
}

// Action is an operation verb gated within a module. Closed set.
type Action string

const (
	ActionView           Action = "view"
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDisable        Action = "disable"
	ActionApprove        Action = "approve"
	ActionLock           Action = "lock"
	ActionSequenceAdjust Action = "sequence-adjust"
	ActionCancel         Action = "cancel"
)

// actions is indexed by bit position inside ActionSet.
var actions = [...]Action{
	ActionView,
	ActionCreate,
	ActionUpdate,
	ActionDisable,
	ActionApprove,
	ActionLock,
	ActionSequenceAdjust,
	ActionCancel,
}

// Actions returns every action in catalog order.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions[:])
	return out
}

func (a Action) bit() (ActionSet, bool) {
	for i, known := range actions {
		if known == a {
			return ActionSet(1) << i, true
		}
	}
	return 0, false
}

// Valid reports whether a belongs to the catalog.
func (a Action) Valid() bool {
	_, ok := a.bit()
	return ok
}

// ParseAction converts s into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownAction, s)
	}
	return a, nil
}

// ActionSet is a set of actions. The zero value is the empty set and sets
// are plain values, so sharing one never aliases mutable state.
type ActionSet uint16

// allActions has every catalog bit set.
const allActions = ActionSet(1)<<len(actions) - 1

// NewActionSet builds a set from actions. Unknown actions are an error.
func NewActionSet(acts ...Action) (ActionSet, error) {
	var s ActionSet
	for _, a := range acts {
		b, ok := a.bit()
		if !ok {
			return 0, fmt.Errorf("%w %q", ErrUnknownAction, a)
		}
		s |= b
	}
	return s, nil
}

// Of builds a set from catalog constants. It panics on unknown actions and is
// meant for static tables.
func Of(acts ...Action) ActionSet {
	s, err := NewActionSet(acts...)
	if err != nil {
		panic(err)
	}
	return s
}

// AllActions returns the set containing every action.
func AllActions() ActionSet { return allActions }

// Has reports whether a is in the set. Unknown actions are never members.
func (s ActionSet) Has(a Action) bool {
	b, ok := a.bit()
	return ok && s&b != 0
}

// Union returns the set of actions in s or other.
func (s ActionSet) Union(other ActionSet) ActionSet { return s | other }

// Contains reports whether every action of other is in s.
func (s ActionSet) Contains(other ActionSet) bool { return s&other == other }

// IsEmpty reports whether the set has no actions.
func (s ActionSet) IsEmpty() bool { return s&allActions == 0 }

// Actions lists the members in catalog order.
func (s ActionSet) Actions() []Action {
	out := make([]Action, 0, len(actions))
	for i, a := range actions {
		if s&(ActionSet(1)<<i) != 0 {
			out = append(out, a)
		}
	}
	return out
}

// Strings lists the members as plain strings in catalog order.
func (s ActionSet) Strings() []string {
	acts := s.Actions()
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = string(a)
	}
	return out
}

// MarshalJSON encodes the set as a list of action names.
func (s ActionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes a list of action names, rejecting unknown names.
func (s *ActionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParseActionSet(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// ParseActionSet converts action names into a set.
func ParseActionSet(names []string) (ActionSet, error) {
	var s ActionSet
	for _, name := range names {
		a, err := ParseAction(name)
		if err != nil {
			return 0, err
		}
		b, _ := a.bit()
		s |= b
	}
	return s, nil
}
