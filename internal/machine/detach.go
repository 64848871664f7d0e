package machine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"

	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/resource"
)

const (
	// DefaultDetachTimeout is the ceiling on boot media detach retries.
	DefaultDetachTimeout = 5 * time.Minute
	// DefaultDetachInterval is the pause between detach attempts.
	DefaultDetachInterval = 2 * time.Second

	domainStateShutoff = int32(libvirt.DomainShutoff)
)

var errStillRunning = errors.New("machine has not shut off yet")

// detachBootMedia shuts the machine down, removes the boot configuration
// cdrom from its persistent definition once it is off, and starts it again.
func (p *Provider) detachBootMedia(ctx context.Context, domain libvirt.Domain, seedPath string) error {
	p.logger.Infof("Shutting down %s...", domain.Name)
	if err := p.domains.DomainShutdown(domain); err != nil {
		return hypervisorError("shut down machine", "DomainShutdown "+domain.Name, err)
	}

	deviceXML, err := anvillibvirt.SeedDeviceXML(seedPath)
	if err != nil {
		return err
	}

	p.logger.Infof("Detaching boot media from %s...", domain.Name)
	deadline := p.now().Add(p.opts.DetachTimeout)
	attempts := 0
	for {
		attempts++
		p.recorder.DetachAttempt()
		err := p.tryDetach(domain, deviceXML)
		if err == nil {
			break
		}
		p.logger.Debugw("boot media not detached yet", "machine", domain.Name, "attempt", attempts, "error", err)

		if !p.now().Before(deadline) {
			return &resource.MediaDetachError{Machine: domain.Name, Attempts: attempts, Err: err}
		}
		if err := p.sleep(ctx, p.opts.DetachInterval); err != nil {
			return err
		}
	}

	p.logger.Infof("Starting %s...", domain.Name)
	if err := p.domains.DomainCreate(domain); err != nil {
		return hypervisorError("start machine", "DomainCreate "+domain.Name, err)
	}
	return nil
}

func (p *Provider) tryDetach(domain libvirt.Domain, deviceXML string) error {
	state, _, err := p.domains.DomainGetState(domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get machine state: %w", err)
	}
	if state != domainStateShutoff {
		return errStillRunning
	}
	return p.domains.DomainDetachDeviceFlags(domain, deviceXML, uint32(libvirt.DomainDeviceModifyConfig))
}

// hypervisorError wraps a failed libvirt call.
func hypervisorError(op, call string, err error) error {
	return &resource.ProvisioningError{Op: op, Command: call, ExitCode: -1, Err: err}
}
