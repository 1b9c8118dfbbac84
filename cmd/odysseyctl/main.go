// Command odysseyctl is the operator CLI for sequence numbering, permission
// previews and the provisioning queue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "odysseyctl",
		Short:         "Operate the Odyssey access and numbering core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(sequenceCmd(), rbacCmd(), jobsCmd())
	return cmd
}
