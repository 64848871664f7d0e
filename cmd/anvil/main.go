package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags.
var (
	logLevel     string
	logJSON      bool
	hostConfig   string
	stateDir     string
	metricsFile  string
	traceEnabled bool
	eventsURL    string
	outputFormat string
	noHeaders    bool
	showSecrets  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "anvil",
	Short: "Anvil - declarative libvirt server provisioning",
	Long: `Anvil provisions servers on a libvirt host from YAML descriptions.

Each server is a logical volume, a virtual machine booted from a cloud-init
seed and an optional Ansible playbook run. A stack file lists the servers and
the data that flows between them, such as a control plane address or a join
token.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&logJSON, "log-json", false, "Log as JSON")
	flags.StringVar(&hostConfig, "host-config", "", "Host settings file (default: $XDG_CONFIG_HOME/anvil/host.yaml)")
	flags.StringVar(&stateDir, "state-dir", "", "State directory (overrides the host settings)")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the command ends")
	flags.BoolVar(&traceEnabled, "trace", false, "Print OpenTelemetry spans to stderr")
	flags.StringVar(&eventsURL, "events-url", "", "Publish resource events to this NATS server")
	flags.StringVarP(&outputFormat, "output", "o", "table", "Output format (table, yaml, json)")
	flags.BoolVar(&noHeaders, "no-headers", false, "Omit table headers")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(machineCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(testConnCmd)
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close(ctx)

		fmt.Println("Testing libvirt connection...")

		client, err := rt.connect(ctx)
		if err != nil {
			return err
		}
		defer rt.disconnect(client)

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		libVersion, err := client.Version()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Libvirt version: %s\n", libVersion)

		hostname, err := client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		uri, err := client.Libvirt().ConnectGetUri()
		if err != nil {
			return fmt.Errorf("failed to get connection URI: %w", err)
		}
		fmt.Printf("✓ Connection URI: %s\n", uri)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
