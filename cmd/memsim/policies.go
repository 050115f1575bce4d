package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtrqq/memsim/pkg/policy"
)

func newPoliciesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the admission ordering policies.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range policy.Names() {
				p, err := policy.ByName(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", p.Name(), policy.Describe(p))
			}

			return nil
		},
	}
}
