package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the subset of *libvirt.Libvirt used by Manager.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolListAllVolumes(Pool libvirt.StoragePool, NeedResults int32, Flags uint32) ([]libvirt.StorageVol, uint32, error)
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolGetInfo(Vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error)
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
	ConnectListAllStoragePools(NeedResults int32, Flags libvirt.ConnectListAllStoragePoolsFlags) ([]libvirt.StoragePool, uint32, error)
}

// Manager stores seed images in a directory pool.
type Manager struct {
	client   LibvirtClient
	seedPool string
	seedPath string
}

// NewManager creates a Manager using seedPool, backed by seedPath.
// Empty values fall back to DefaultSeedPool and DefaultSeedPath.
func NewManager(client LibvirtClient, seedPool, seedPath string) *Manager {
	if seedPool == "" {
		seedPool = DefaultSeedPool
	}
	if seedPath == "" {
		seedPath = DefaultSeedPath
	}
	return &Manager{
		client:   client,
		seedPool: seedPool,
		seedPath: seedPath,
	}
}

// SeedPool returns the name of the seed pool.
func (m *Manager) SeedPool() string {
	return m.seedPool
}

// StoreSeed writes a seed image into the seed pool, replacing any image of
// the same name, and returns its path on the host.
func (m *Manager) StoreSeed(ctx context.Context, name string, data []byte) (string, error) {
	if err := m.EnsurePool(ctx, m.seedPool, PoolTypeDir, m.seedPath); err != nil {
		return "", fmt.Errorf("failed to ensure seed pool: %w", err)
	}

	exists, err := m.VolumeExists(ctx, m.seedPool, name)
	if err != nil {
		return "", err
	}
	if exists {
		if err := m.DeleteVolume(ctx, m.seedPool, name); err != nil {
			return "", fmt.Errorf("failed to remove stale seed image: %w", err)
		}
	}

	spec := VolumeSpec{
		Name:          name,
		Format:        VolumeFormatRaw,
		CapacityBytes: uint64(len(data)),
	}
	if err := m.CreateVolume(ctx, m.seedPool, spec); err != nil {
		return "", fmt.Errorf("failed to create seed volume: %w", err)
	}
	if err := m.WriteVolumeData(ctx, m.seedPool, name, data); err != nil {
		return "", fmt.Errorf("failed to write seed image: %w", err)
	}

	return m.GetVolumePath(ctx, m.seedPool, name)
}

// RemoveSeed deletes a seed image. A missing image is not an error.
func (m *Manager) RemoveSeed(ctx context.Context, name string) error {
	exists, err := m.VolumeExists(ctx, m.seedPool, name)
	if err != nil || !exists {
		return nil
	}
	return m.DeleteVolume(ctx, m.seedPool, name)
}
