package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/machine"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Inspect machines on the host",
}

func init() {
	machineCmd.AddCommand(machineGetCmd)
}

var machineGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Get the spec a machine was created from",
	Long: `Read the spec anvil stored in a machine's libvirt domain metadata.

This works without the state store, so it also shows machines created from
another workstation.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   Full YAML spec
  -o json   Full JSON spec`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close(ctx)

		client, err := rt.connect(ctx)
		if err != nil {
			return err
		}
		defer rt.disconnect(client)

		spec, err := machine.LoadSpec(client.Libvirt(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get machine: %w", err)
		}

		formatter, err := rt.formatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatMachine(spec)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}
