package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/output"
)

// State inspection commands
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect recorded resources",
	Long: `Inspect the resources anvil has recorded for a stack.

Each record holds the inputs a resource was created from and the outputs it
produced. Secret outputs are shown as [secret].`,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateGetCmd)
}

var stateListCmd = &cobra.Command{
	Use:   "list <stack>",
	Short: "List the resources of a stack",
	Long: `List every resource recorded for a stack.

The stack is given by name or by the path of its stack file.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   Full YAML records
  -o json   Full JSON records`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close(ctx)

		store, err := rt.openState()
		if err != nil {
			return err
		}
		defer rt.closeState(store)

		recs, err := store.ListStack(ctx, stackName(args[0]))
		if err != nil {
			return err
		}
		resources, err := output.NewResourceList(recs)
		if err != nil {
			return err
		}

		formatter, err := rt.formatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatResourceList(resources)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var stateGetCmd = &cobra.Command{
	Use:   "get <stack> <resource>",
	Short: "Get one recorded resource",
	Long: `Get one resource recorded for a stack.

The resource is matched by logical name, provider ID or URN.

Example:
  anvil state get dev kube1 -o yaml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close(ctx)

		store, err := rt.openState()
		if err != nil {
			return err
		}
		defer rt.closeState(store)

		rec, err := store.Find(ctx, stackName(args[0]), args[1])
		if err != nil {
			return fmt.Errorf("failed to get resource: %w", err)
		}
		r, err := output.NewResource(rec)
		if err != nil {
			return err
		}

		formatter, err := rt.formatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatResource(r)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}
