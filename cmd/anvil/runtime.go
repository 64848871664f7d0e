package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/disk"
	"github.com/jbweber/anvil/internal/engine"
	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/metrics"
	"github.com/jbweber/anvil/internal/output"
	"github.com/jbweber/anvil/internal/playbook"
	"github.com/jbweber/anvil/internal/server"
	"github.com/jbweber/anvil/internal/ssh"
	"github.com/jbweber/anvil/internal/state"
	"github.com/jbweber/anvil/internal/storage"
	"github.com/jbweber/anvil/internal/tracing"
	"github.com/jbweber/anvil/internal/volume"
)

// runtime holds what every command shares: the logger, host settings and
// the optional observability sinks.
type runtime struct {
	logger  *zap.Logger
	log     *zap.SugaredLogger
	host    *config.Host
	metrics *metrics.Metrics
	events  events.Publisher

	stopTracing func(context.Context) error
}

func newRuntime() (*runtime, error) {
	if err := output.ValidateFormat(outputFormat); err != nil {
		return nil, err
	}

	logger, err := logging.New(logLevel, logJSON)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		logger:  logger,
		log:     logger.Sugar(),
		metrics: metrics.New(),
		events:  events.Nop{},
	}

	host, err := config.LoadHost(hostConfig)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	if stateDir != "" {
		host.StateDir = stateDir
	}
	rt.host = host

	if traceEnabled {
		stop, err := tracing.Setup(os.Stderr)
		if err != nil {
			_ = logger.Sync()
			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}
		rt.stopTracing = stop
	}

	if eventsURL != "" {
		pub, err := events.NewNATSPublisher(eventsURL, rt.log.Named("events"))
		if err != nil {
			rt.close(context.Background())
			return nil, err
		}
		rt.events = pub
	}

	return rt, nil
}

// close flushes metrics, spans, events and logs.
func (rt *runtime) close(ctx context.Context) {
	if metricsFile != "" {
		if err := rt.metrics.WriteTextfile(metricsFile); err != nil {
			rt.log.Warnw("failed to write metrics", "error", err)
		}
	}
	if rt.stopTracing != nil {
		if err := rt.stopTracing(ctx); err != nil {
			rt.log.Warnw("failed to flush traces", "error", err)
		}
	}
	rt.events.Close()
	_ = rt.logger.Sync()
}

func (rt *runtime) connect(ctx context.Context) (*libvirt.Client, error) {
	return libvirt.ConnectWithContext(ctx, rt.host.LibvirtSocket, rt.host.LibvirtTimeout)
}

func (rt *runtime) disconnect(client *libvirt.Client) {
	if err := client.Close(); err != nil {
		rt.log.Warnw("failed to close libvirt connection", "error", err)
	}
}

func (rt *runtime) openState() (*state.Store, error) {
	if err := os.MkdirAll(rt.host.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	store, err := state.Open(rt.host.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	return store, nil
}

func (rt *runtime) closeState(store *state.Store) {
	if err := store.Close(); err != nil {
		rt.log.Warnw("failed to close state", "error", err)
	}
}

// providers builds the three resource providers against client. scriptsDir
// is where relative setup scripts and files are read from.
func (rt *runtime) providers(client *libvirt.Client, scriptsDir string) (server.Providers, error) {
	sshConfig, err := rt.host.SSHConfig()
	if err != nil {
		return server.Providers{}, err
	}
	if err := os.MkdirAll(filepath.Dir(sshConfig.KnownHostsPath), 0o700); err != nil {
		return server.Providers{}, fmt.Errorf("failed to create known_hosts directory: %w", err)
	}
	remote, err := ssh.NewClient(sshConfig)
	if err != nil {
		return server.Providers{}, fmt.Errorf("failed to create ssh client: %w", err)
	}

	exec := command.NewLocal(rt.log.Named("command"))
	seeds := storage.NewManager(client.Libvirt(), rt.host.SeedPool, rt.host.SeedPoolPath)
	imager := disk.NewImager(exec, rt.log.Named("disk"))

	machines := machine.NewProvider(
		client.Libvirt(), remote, seeds, imager,
		rt.host.MachineOptions(scriptsDir),
		rt.log.Named("machine"),
	).WithRecorder(rt.metrics)

	return server.Providers{
		Volumes:        volume.NewProvider(exec, rt.log.Named("volume")),
		Machines:       machines,
		Configurations: playbook.NewProvider(exec, remote, rt.host.PlaybookOptions(), rt.log.Named("playbook")),
	}, nil
}

func (rt *runtime) newEngine(stack string, store *state.Store) *engine.Engine {
	return engine.New(stack, store,
		engine.WithLogger(rt.log.Named("engine")),
		engine.WithObserver(rt.metrics),
		engine.WithTracer(tracing.Tracer()),
		engine.WithEvents(rt.events),
	)
}

func (rt *runtime) formatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}
