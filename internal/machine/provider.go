package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/cloudinit"
	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/metadata"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/ssh"
	"github.com/jbweber/anvil/internal/status"
)

// Options are the host-wide settings machines are provisioned with.
type Options struct {
	// BaseImage is the raw installation image copied onto each disk.
	BaseImage string
	// Bridge is the host bridge machines are attached to.
	Bridge string
	// ScriptsDir is prefixed to setup script and file paths.
	ScriptsDir string

	RootPassword   string
	AuthorizedKeys []string
	// ImageUser is the default user of the base image, removed at first boot.
	ImageUser string

	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration
	StrictReadiness   bool

	DetachTimeout  time.Duration
	DetachInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadinessTimeout == 0 {
		o.ReadinessTimeout = DefaultReadinessTimeout
	}
	if o.ReadinessInterval == 0 {
		o.ReadinessInterval = DefaultReadinessInterval
	}
	if o.DetachTimeout == 0 {
		o.DetachTimeout = DefaultDetachTimeout
	}
	if o.DetachInterval == 0 {
		o.DetachInterval = DefaultDetachInterval
	}
	return o
}

// Provider implements resource.Provider for machines.
type Provider struct {
	domains  DomainClient
	remote   Remote
	seeds    SeedStore
	imager   DiskImager
	opts     Options
	recorder Recorder
	logger   *zap.SugaredLogger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

var _ resource.Provider[Spec, Outputs] = (*Provider)(nil)

// NewProvider creates a machine Provider.
func NewProvider(domains DomainClient, remote Remote, seeds SeedStore, imager DiskImager, opts Options, logger *zap.SugaredLogger) *Provider {
	return &Provider{
		domains:  domains,
		remote:   remote,
		seeds:    seeds,
		imager:   imager,
		opts:     opts.withDefaults(),
		recorder: nopRecorder{},
		logger:   logging.OrNop(logger),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// WithRecorder sends polling metrics to r.
func (p *Provider) WithRecorder(r Recorder) *Provider {
	if r != nil {
		p.recorder = r
	}
	return p
}

// Kind implements resource.Provider.
func (p *Provider) Kind() resource.Kind {
	return resource.KindMachine
}

// ID implements resource.Provider. A machine is identified by its name.
func (p *Provider) ID(spec Spec) string {
	return spec.Name
}

func (p *Provider) waiter() *ReadinessWaiter {
	w := NewReadinessWaiter(p.remote, p.logger)
	w.Timeout = p.opts.ReadinessTimeout
	w.Interval = p.opts.ReadinessInterval
	w.Strict = p.opts.StrictReadiness
	w.Recorder = p.recorder
	w.now = p.now
	w.sleep = p.sleep
	return w
}

// Create provisions a machine and returns its name and outputs.
//
// The sequence is strictly ordered and stops at the first error; nothing
// created before the failure is rolled back.
func (p *Provider) Create(ctx context.Context, spec Spec) (string, Outputs, error) {
	if err := spec.Validate(); err != nil {
		return "", Outputs{}, fmt.Errorf("invalid machine spec: %w", err)
	}

	log := p.logger.With("machine", spec.Name)
	tracker := status.NewTracker(spec.Name, p.logger)
	outs := Outputs{Address: spec.Address, DevicePath: spec.DevicePath()}

	log.Infof("Checking if machine '%s' already exists...", spec.Name)
	if _, err := p.domains.DomainLookupByName(spec.Name); err == nil {
		return "", Outputs{}, fmt.Errorf("machine '%s' already exists but is not recorded in state; "+
			"remove it with 'virsh destroy %s' and 'virsh undefine %s' before retrying", spec.Name, spec.Name, spec.Name)
	} else if !libvirt.IsNotFound(err) {
		return "", Outputs{}, hypervisorError("create machine", "DomainLookupByName "+spec.Name, err)
	}

	// Step 1: boot configuration image
	log.Infof("Generating boot configuration...")
	docs, err := cloudinit.Render(cloudinit.Input{
		Hostname:       spec.Name,
		Address:        spec.Address,
		Gateway:        spec.Gateway,
		ImageUser:      p.opts.ImageUser,
		RootPassword:   p.opts.RootPassword,
		AuthorizedKeys: p.opts.AuthorizedKeys,
	})
	if err != nil {
		return "", Outputs{}, fmt.Errorf("failed to render boot configuration: %w", err)
	}
	iso, err := cloudinit.GenerateISO(docs)
	if err != nil {
		return "", Outputs{}, fmt.Errorf("failed to build boot configuration image: %w", err)
	}

	log.Infof("Storing boot configuration image...")
	outs.SeedImagePath, err = p.seeds.StoreSeed(ctx, naming.SeedImageName(spec.Name), iso)
	if err != nil {
		return "", Outputs{}, fmt.Errorf("failed to store boot configuration image: %w", err)
	}

	// Step 2: disk
	log.Infof("Imaging disk %s (%dG)...", outs.DevicePath, spec.DiskSizeGiB)
	if err := p.imager.Image(ctx, p.opts.BaseImage, outs.DevicePath, spec.DiskSizeGiB); err != nil {
		return "", Outputs{}, err
	}
	if err := tracker.Transition(status.PhaseDiskImaged); err != nil {
		return "", Outputs{}, err
	}

	// Step 3: define and boot
	log.Infof("Defining domain...")
	domainXML, err := anvillibvirt.GenerateDomainXML(anvillibvirt.DomainSpec{
		Name:          spec.Name,
		CPUCount:      uint(spec.CPUCount),
		MemoryMiB:     uint(spec.RAMMiB),
		DiskPath:      outs.DevicePath,
		SeedImagePath: outs.SeedImagePath,
		Bridge:        p.opts.Bridge,
		Address:       spec.Address,
	})
	if err != nil {
		return "", Outputs{}, fmt.Errorf("failed to generate domain XML: %w", err)
	}
	domain, err := p.domains.DomainDefineXML(domainXML)
	if err != nil {
		return "", Outputs{}, hypervisorError("define machine", "DomainDefineXML "+spec.Name, err)
	}
	if err := tracker.Transition(status.PhaseBootMediaAttached); err != nil {
		return "", Outputs{}, err
	}

	log.Infof("Storing machine spec in domain metadata...")
	if err := metadata.Store(p.domains, domain, spec); err != nil {
		return "", Outputs{}, hypervisorError("store machine metadata", "DomainSetMetadata "+spec.Name, err)
	}

	log.Infof("Starting machine...")
	if err := p.domains.DomainCreate(domain); err != nil {
		return "", Outputs{}, hypervisorError("start machine", "DomainCreate "+spec.Name, err)
	}
	if err := tracker.Transition(status.PhaseInstalled); err != nil {
		return "", Outputs{}, err
	}

	// Steps 4 and 5: first boot and host key
	log.Infof("Purging stale host keys for %s...", spec.Address)
	if err := p.remote.PurgeHost(spec.Address); err != nil {
		return "", Outputs{}, fmt.Errorf("failed to purge known hosts: %w", err)
	}
	if err := tracker.Transition(status.PhaseAwaitingFirstBoot); err != nil {
		return "", Outputs{}, err
	}

	log.Infof("Waiting for ssh on %s...", spec.Address)
	if _, err := p.waiter().Wait(ctx, spec.Address); err != nil {
		return "", Outputs{}, err
	}

	log.Infof("Recording host key for %s...", spec.Address)
	if err := p.remote.RecordHost(ctx, spec.Address); err != nil {
		log.Warnw("failed to record host key", "error", err)
	}

	// Step 6: setup
	if err := p.runSetup(ctx, spec); err != nil {
		return "", Outputs{}, err
	}

	// Step 7: detach boot media and restart
	if err := tracker.Transition(status.PhaseBootMediaDetaching); err != nil {
		return "", Outputs{}, err
	}
	if err := p.detachBootMedia(ctx, domain, outs.SeedImagePath); err != nil {
		return "", Outputs{}, err
	}
	if err := tracker.Transition(status.PhaseRebooted); err != nil {
		return "", Outputs{}, err
	}

	// Step 8: post-boot wait
	log.Infof("Waiting for ssh on %s after restart...", spec.Address)
	if _, err := p.waiter().Wait(ctx, spec.Address); err != nil {
		return "", Outputs{}, err
	}
	if err := tracker.Transition(status.PhaseConfigurablySetUp); err != nil {
		return "", Outputs{}, err
	}

	// Step 9: results
	if len(spec.ResultFiles) > 0 {
		log.Infof("Collecting result files...")
		outs.Result, err = ssh.ReadFiles(ctx, p.remote, spec.Address, spec.ResultFiles)
		if err != nil {
			return "", Outputs{}, err
		}
	}
	if err := tracker.Transition(status.PhaseReady); err != nil {
		return "", Outputs{}, err
	}

	log.Infof("Machine '%s' is ready", spec.Name)
	return spec.Name, outs, nil
}

// Diff reports a delete-before-replace for any change in the spec.
func (p *Provider) Diff(_ context.Context, _ string, olds Spec, _ Outputs, news Spec) (resource.DiffResult, error) {
	return resource.ReplaceFields(resource.ChangedFields(olds, news)), nil
}

// Update is not supported; every change replaces the machine.
func (p *Provider) Update(_ context.Context, id string, _ Spec, _ Outputs, _ Spec) (Outputs, error) {
	return Outputs{}, fmt.Errorf("machine %s: %w", id, resource.ErrUpdateUnsupported)
}

// Delete force-stops and undefines the machine, then removes its boot
// configuration image. Failing to remove the image only logs a warning.
func (p *Provider) Delete(ctx context.Context, id string, _ Spec, _ Outputs) error {
	log := p.logger.With("machine", id)

	log.Infof("Looking up machine '%s'...", id)
	domain, err := p.domains.DomainLookupByName(id)
	if err != nil {
		return hypervisorError("delete machine", "DomainLookupByName "+id, err)
	}

	state, _, err := p.domains.DomainGetState(domain, 0)
	if err != nil {
		return hypervisorError("delete machine", "DomainGetState "+id, err)
	}
	if state != domainStateShutoff {
		log.Infof("Force stopping machine...")
		if err := p.domains.DomainDestroy(domain); err != nil {
			return hypervisorError("stop machine", "DomainDestroy "+id, err)
		}
	}

	log.Infof("Undefining machine...")
	if err := p.domains.DomainUndefine(domain); err != nil {
		return hypervisorError("undefine machine", "DomainUndefine "+id, err)
	}

	if err := p.seeds.RemoveSeed(ctx, naming.SeedImageName(id)); err != nil {
		log.Warnw("failed to remove boot configuration image", "error", err)
	}

	log.Infof("Machine '%s' deleted", id)
	return nil
}

// SpecReader looks up a domain and reads its metadata.
type SpecReader interface {
	DomainLookupByName(Name string) (libvirt.Domain, error)
	metadata.LibvirtClient
}

// LoadSpec reads the spec stored on an existing machine's domain.
func LoadSpec(client SpecReader, name string) (*Spec, error) {
	domain, err := client.DomainLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("machine '%s' not found: %w", name, err)
	}
	var spec Spec
	if err := metadata.Load(client, domain, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}
