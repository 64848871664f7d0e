package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/engine"
	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/server"
)

var upCmd = &cobra.Command{
	Use:   "up <stack.yaml>",
	Short: "Create or update every server of a stack",
	Long: `Bring the servers of a stack to the described state.

Resources are created in dependency order. A resource whose inputs changed
is updated in place when possible and replaced otherwise. Resources that
are recorded in state but no longer described are deleted.

Secret outputs are masked unless --show-secrets is given.

Example:
  anvil up stacks/dev/stack.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), args[0], func(ctx context.Context, rt *runtime, e *engine.Engine) error {
			res, err := e.Up(ctx)
			if res != nil {
				if perr := printPlan(rt, res.Steps, res.Exports); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("failed to bring stack up: %w", err)
			}
			return nil
		})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <stack.yaml>",
	Short: "Show what up would change",
	Long: `Compare a stack with its recorded state without changing anything.

Steps marked pending depend on outputs that only exist once their
dependencies have been created; their final inputs are not known yet.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd.Context(), args[0], func(ctx context.Context, rt *runtime, e *engine.Engine) error {
			steps, err := e.Preview(ctx)
			if err != nil {
				return fmt.Errorf("failed to preview stack: %w", err)
			}
			return printPlan(rt, steps, nil)
		})
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <stack.yaml>",
	Short: "Delete every server of a stack",
	Long: `Delete every resource recorded for a stack, dependents first.

This will:
- Forget each playbook run
- Stop and undefine each machine and remove its boot configuration image
- Remove each logical volume`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close(ctx)

		st, err := config.LoadStack(args[0])
		if err != nil {
			return err
		}

		store, err := rt.openState()
		if err != nil {
			return err
		}
		defer rt.closeState(store)

		client, err := rt.connect(ctx)
		if err != nil {
			return err
		}
		defer rt.disconnect(client)

		p, err := rt.providers(client, st.Dir)
		if err != nil {
			return err
		}

		e := rt.newEngine(st.Name, store)
		engine.Provide(e, p.Volumes)
		engine.Provide(e, p.Machines)
		engine.Provide(e, p.Configurations)

		rt.log.Infof("Destroying stack '%s'...", st.Name)
		steps, err := e.Destroy(ctx)
		if perr := printPlan(rt, steps, nil); perr != nil {
			return perr
		}
		if err != nil {
			return fmt.Errorf("failed to destroy stack: %w", err)
		}
		return nil
	},
}

func init() {
	upCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secret exports in clear text")
}

// withStack loads the stack at path, registers its servers and hands the
// engine to fn.
func withStack(ctx context.Context, path string, fn func(context.Context, *runtime, *engine.Engine) error) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	// Step 1: Load the stack
	rt.log.Infof("Loading stack from %s...", path)
	st, err := config.LoadStack(path)
	if err != nil {
		return err
	}

	// Step 2: Open state
	store, err := rt.openState()
	if err != nil {
		return err
	}
	defer rt.closeState(store)

	// Step 3: Connect to libvirt
	client, err := rt.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.disconnect(client)

	// Step 4: Register the servers
	p, err := rt.providers(client, st.Dir)
	if err != nil {
		return err
	}
	e := rt.newEngine(st.Name, store)
	if _, err := server.RegisterStack(e, p, st); err != nil {
		return fmt.Errorf("failed to register stack '%s': %w", st.Name, err)
	}

	return fn(ctx, rt, e)
}

func printPlan(rt *runtime, steps []engine.Step, exports map[string]engine.Export) error {
	formatter, err := rt.formatter()
	if err != nil {
		return err
	}
	out, err := formatter.FormatPlan(output.NewPlan(steps, exports, showSecrets))
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(out)
	return nil
}

// stackName accepts a stack file or a bare stack name.
func stackName(ref string) string {
	if st, err := config.LoadStack(ref); err == nil {
		return st.Name
	}
	return ref
}
