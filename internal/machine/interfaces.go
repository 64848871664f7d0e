package machine

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/command"
)

// DomainClient is the subset of *libvirt.Libvirt used for machines.
type DomainClient interface {
	DomainLookupByName(Name string) (libvirt.Domain, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
	DomainCreate(Dom libvirt.Domain) error
	DomainGetState(Dom libvirt.Domain, Flags uint32) (rState int32, rReason int32, err error)
	DomainShutdown(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error
	DomainUndefine(Dom libvirt.Domain) error
	DomainDetachDeviceFlags(Dom libvirt.Domain, XML string, Flags uint32) error
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, URI libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, URI libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// Remote is the SSH capability machines are set up through.
type Remote interface {
	Prober
	Run(ctx context.Context, host, cmd string) (command.Result, error)
	Upload(ctx context.Context, host, localPath, remotePath string) error
	PurgeHost(host string) error
	RecordHost(ctx context.Context, host string) error
}

// Prober checks whether an SSH server answers at host. A nil error means
// the SSH layer was reached, whether or not authentication would succeed.
type Prober interface {
	Probe(ctx context.Context, host string) error
}

// SeedStore keeps boot configuration images on the hypervisor.
type SeedStore interface {
	StoreSeed(ctx context.Context, name string, data []byte) (string, error)
	RemoveSeed(ctx context.Context, name string) error
}

// DiskImager writes the base image onto a machine's device.
type DiskImager interface {
	Image(ctx context.Context, baseImage, devicePath string, sizeGiB int) error
}

// Recorder receives polling metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ProbeAttempt(ready bool)
	DetachAttempt()
}

type nopRecorder struct{}

func (nopRecorder) ProbeAttempt(bool) {}
func (nopRecorder) DetachAttempt()    {}
