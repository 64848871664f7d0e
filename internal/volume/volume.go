package volume

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
)

// Spec is the desired state of a logical volume.
type Spec struct {
	Name        string `json:"name" yaml:"name"`
	SizeGiB     int    `json:"sizeGiB" yaml:"sizeGiB"`
	VolumeGroup string `json:"volumeGroup" yaml:"volumeGroup"`
}

// Validate checks the spec before lvcreate is run.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	if s.VolumeGroup == "" {
		return fmt.Errorf("volume group is required")
	}
	if s.SizeGiB <= 0 {
		return fmt.Errorf("volume size must be greater than 0, got %d", s.SizeGiB)
	}
	return nil
}

// Outputs is the recorded state of a created volume.
type Outputs struct {
	DevicePath string `json:"devicePath" yaml:"devicePath"`
}

// Provider implements resource.Provider for logical volumes.
type Provider struct {
	exec   command.Executor
	logger *zap.SugaredLogger
}

var _ resource.Provider[Spec, Outputs] = (*Provider)(nil)

// NewProvider creates a volume Provider running LVM tools through exec.
func NewProvider(exec command.Executor, logger *zap.SugaredLogger) *Provider {
	return &Provider{exec: exec, logger: logging.OrNop(logger)}
}

// Kind implements resource.Provider.
func (p *Provider) Kind() resource.Kind {
	return resource.KindVolume
}

// ID implements resource.Provider.
func (p *Provider) ID(spec Spec) string {
	return naming.VolumeID(spec.VolumeGroup, spec.Name)
}

// Create runs lvcreate and returns the volume's identity and device path.
func (p *Provider) Create(ctx context.Context, spec Spec) (string, Outputs, error) {
	if err := spec.Validate(); err != nil {
		return "", Outputs{}, fmt.Errorf("invalid volume spec: %w", err)
	}

	id := p.ID(spec)
	p.logger.Infof("Creating logical volume %s (%dG)...", id, spec.SizeGiB)
	_, err := command.Check(ctx, p.exec, "create volume", "lvcreate",
		"-L", strconv.Itoa(spec.SizeGiB)+"G",
		"-n", spec.Name,
		"--wipesignatures", "y",
		"--yes",
		"--zero", "y",
		spec.VolumeGroup,
	)
	if err != nil {
		return "", Outputs{}, err
	}

	return id, Outputs{DevicePath: naming.DevicePath(spec.VolumeGroup, spec.Name)}, nil
}

// Diff reports a delete-before-replace for any change in the spec.
func (p *Provider) Diff(_ context.Context, _ string, olds Spec, _ Outputs, news Spec) (resource.DiffResult, error) {
	return resource.ReplaceFields(resource.ChangedFields(olds, news)), nil
}

// Update is not supported; every change replaces the volume.
func (p *Provider) Update(_ context.Context, id string, _ Spec, _ Outputs, _ Spec) (Outputs, error) {
	return Outputs{}, fmt.Errorf("volume %s: %w", id, resource.ErrUpdateUnsupported)
}

// Delete runs lvremove on the recorded device path. Failures are not
// retried.
func (p *Provider) Delete(ctx context.Context, id string, olds Spec, outs Outputs) error {
	devicePath := outs.DevicePath
	if devicePath == "" {
		vg, name, err := naming.ParseVolumeID(id)
		if err != nil {
			return err
		}
		devicePath = naming.DevicePath(vg, name)
	}

	p.logger.Infof("Removing logical volume %s...", devicePath)
	_, err := command.Check(ctx, p.exec, "delete volume", "lvremove", devicePath, "--yes")
	return err
}
