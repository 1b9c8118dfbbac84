package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-core/internal/rbac"
)

type rbacFlags struct {
	role       string
	department string
	overrides  []string
}

func (f *rbacFlags) options() (rbac.Options, error) {
	raw := make(map[string][]string, len(f.overrides))
	for _, o := range f.overrides {
		module, actions, ok := strings.Cut(o, "=")
		if !ok {
			return rbac.Options{}, fmt.Errorf("override %q must look like module=action,action", o)
		}
		var list []string
		if actions != "" {
			list = strings.Split(actions, ",")
		}
		raw[module] = list
	}
	var overrides rbac.Overrides
	if len(raw) > 0 {
		var err error
		if overrides, err = rbac.ParseOverrides(raw); err != nil {
			return rbac.Options{}, err
		}
	}
	return rbac.Options{
		Role:       rbac.RoleID(f.role),
		Department: rbac.DepartmentID(f.department),
		Overrides:  overrides,
	}, nil
}

// parseAssignments reads arguments of the form role[:dept,dept].
func parseAssignments(args []string) []rbac.Assignment {
	out := make([]rbac.Assignment, 0, len(args))
	for i, arg := range args {
		role, depts, _ := strings.Cut(arg, ":")
		a := rbac.Assignment{Role: rbac.RoleID(role), Primary: i == 0}
		if depts != "" {
			for _, d := range strings.Split(depts, ",") {
				a.Departments = append(a.Departments, rbac.DepartmentID(d))
			}
		}
		out = append(out, a)
	}
	return out
}

func rbacCmd() *cobra.Command {
	flags := &rbacFlags{}
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "Preview permission profiles",
	}
	cmd.PersistentFlags().StringVar(&flags.role, "role", "", "Only count assignments with this role")
	cmd.PersistentFlags().StringVar(&flags.department, "department", "", "Only count assignments covering this department")
	cmd.PersistentFlags().StringArrayVar(&flags.overrides, "override", nil, "Per-module override, module=action,action (repeatable)")

	cmd.AddCommand(&cobra.Command{
		Use:   "profile ROLE[:DEPT,...]...",
		Short: "Print the resolved profile for a set of assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			profile, err := rbac.DefaultEngine().BuildProfile(parseAssignments(args), opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), profile)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "can MODULE ACTION ROLE[:DEPT,...]...",
		Short: "Check a single module action",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			ok, err := rbac.DefaultEngine().CanPerform(parseAssignments(args[2:]), rbac.Module(args[0]), rbac.Action(args[1]), opts)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "allowed")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "denied")
			return nil
		},
	})
	return cmd
}
