package rbac

import "fmt"

// Matrix is the base grant table: role → module → actions. It is read-only
// after construction.
type Matrix map[RoleID]map[Module]ActionSet

// Grants returns the actions role has on module.
func (m Matrix) Grants(role RoleID, module Module) ActionSet {
	return m[role][module]
}

func (m Matrix) validate(roles RoleCatalog) error {
	for role, grants := range m {
		if _, ok := roles.Lookup(role); !ok {
			return fmt.Errorf("%w %q in matrix", ErrUnknownRole, role)
		}
		for module := range grants {
			if !module.Valid() {
				return fmt.Errorf("%w %q in matrix for role %q", ErrUnknownModule, module, role)
			}
		}
	}
	return nil
}

var (
	readOnly  = Of(ActionView)
	editor    = Of(ActionView, ActionCreate, ActionUpdate)
	approver  = Of(ActionView, ActionCreate, ActionUpdate, ActionApprove)
	custodian = Of(ActionView, ActionCreate, ActionUpdate, ActionDisable, ActionApprove, ActionLock, ActionCancel)
)

// DefaultMatrix returns the stock grant table. A fresh copy is returned so
// callers may derive their own tables without touching the default.
func DefaultMatrix() Matrix {
	return Matrix{
		RoleOperator: {
			ModuleParts:      readOnly,
			ModuleProducts:   readOnly,
			ModuleMaterials:  readOnly,
			ModuleUnits:      readOnly,
			ModuleFiles:      readOnly,
			ModuleInventory:  readOnly,
			ModuleProduction: Of(ActionView, ActionUpdate),
		},
		RolePlanner: {
			ModuleParts:      editor,
			ModuleProducts:   editor,
			ModuleMaterials:  editor,
			ModuleCategories: readOnly,
			ModuleUnits:      readOnly,
			ModuleFiles:      editor,
			ModuleSuppliers:  readOnly,
			ModuleCustomers:  readOnly,
			ModuleSequences:  readOnly,
			ModuleQuotes:     readOnly,
			ModuleOrders:     editor,
			ModuleInventory:  editor,
			ModuleProduction: approver,
		},
		RoleManager: {
			ModuleUsers:      readOnly,
			ModuleEmployees:  editor,
			ModuleUnits:      custodian,
			ModuleSuppliers:  custodian,
			ModuleCustomers:  custodian,
			ModuleParts:      custodian,
			ModuleProducts:   custodian,
			ModuleCategories: custodian,
			ModuleMaterials:  custodian,
			ModuleFiles:      custodian,
			ModuleSequences:  Of(ActionView, ActionCreate),
			ModuleQuotes:     custodian,
			ModuleOrders:     custodian,
			ModuleInventory:  custodian,
			ModuleProduction: custodian,
		},
		RoleAdmin: allModules(AllActions()),
	}
}

func allModules(set ActionSet) map[Module]ActionSet {
	out := make(map[Module]ActionSet, len(modules))
	for _, m := range modules {
		out[m] = set
	}
	return out
}
