package storage

import "fmt"

// PoolType is the libvirt storage pool backend.
type PoolType string

const (
	PoolTypeDir PoolType = "dir"     // directory pool
	PoolTypeLVM PoolType = "logical" // LVM volume group
)

// VolumeFormat is the on-disk format of a volume or image.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw"
)

// VolumeSpec specifies a volume to create.
type VolumeSpec struct {
	Name          string
	Format        VolumeFormat
	CapacityBytes uint64
}

// Validate checks if the volume spec is valid.
func (v *VolumeSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	if v.Format != VolumeFormatQCOW2 && v.Format != VolumeFormatRaw {
		return fmt.Errorf("invalid volume format: %q (must be qcow2 or raw)", v.Format)
	}
	if v.CapacityBytes == 0 {
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	return nil
}

// PoolInfo describes a storage pool.
type PoolInfo struct {
	Name       string   `json:"name" yaml:"name"`
	Type       PoolType `json:"type" yaml:"type"`
	Path       string   `json:"path" yaml:"path"`
	UUID       string   `json:"uuid" yaml:"uuid"`
	State      string   `json:"state" yaml:"state"`
	Capacity   uint64   `json:"capacity" yaml:"capacity"`
	Allocation uint64   `json:"allocation" yaml:"allocation"`
	Available  uint64   `json:"available" yaml:"available"`
}

// VolumeInfo describes a storage volume.
type VolumeInfo struct {
	Name       string `json:"name" yaml:"name"`
	Path       string `json:"path" yaml:"path"`
	Pool       string `json:"pool" yaml:"pool"`
	Capacity   uint64 `json:"capacity" yaml:"capacity"`
	Allocation uint64 `json:"allocation" yaml:"allocation"`
}

const (
	// DefaultSeedPool holds boot configuration seed images.
	DefaultSeedPool = "anvil-seeds"
	// DefaultSeedPath is the directory backing DefaultSeedPool.
	DefaultSeedPath = "/var/lib/libvirt/images/anvil-seeds"
)
