package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/storage"
)

// Pool inspection commands
var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Inspect storage pools",
	Long: `Inspect libvirt storage pools.

Anvil keeps boot configuration images in a directory pool (anvil-seeds by
default) and creates it on first use.`,
}

func init() {
	poolCmd.AddCommand(poolListCmd)
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all storage pools",
	Long: `List all storage pools with their state and capacity information.

Shows pool name, type, state, and storage capacity/usage for each pool.`,
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

		mgr := storage.NewManager(client.Libvirt(), rt.host.SeedPool, rt.host.SeedPoolPath)
		pools, err := mgr.ListPools(ctx)
		if err != nil {
			return fmt.Errorf("failed to list pools: %w", err)
		}

		formatter, err := rt.formatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatPools(pools)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}
