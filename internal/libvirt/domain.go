package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/anvil/internal/naming"
)

// SeedDeviceTarget is the target device of the boot configuration cdrom.
const SeedDeviceTarget = "sda"

// DomainSpec describes the domain of a provisioned machine.
type DomainSpec struct {
	Name      string
	CPUCount  uint
	MemoryMiB uint

	// DiskPath is the block device the machine boots from.
	DiskPath string
	// SeedImagePath is the boot configuration image. Empty omits the cdrom.
	SeedImagePath string

	Bridge  string
	Address string
}

// Validate checks the fields GenerateDomainXML depends on.
func (s DomainSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("domain name is required")
	}
	if s.CPUCount == 0 {
		return fmt.Errorf("cpu count must be greater than 0")
	}
	if s.MemoryMiB == 0 {
		return fmt.Errorf("memory must be greater than 0")
	}
	if s.DiskPath == "" {
		return fmt.Errorf("disk path is required")
	}
	if s.Bridge == "" {
		return fmt.Errorf("bridge is required")
	}
	return nil
}

func uintPtr(v uint) *uint { return &v }

// GenerateDomainXML renders the libvirt domain XML for spec.
func GenerateDomainXML(spec DomainSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid domain spec: %w", err)
	}

	macAddr, err := naming.MACFromIP(spec.Address)
	if err != nil {
		return "", fmt.Errorf("failed to calculate MAC address for %s: %w", spec.Address, err)
	}
	ifaceName, err := naming.InterfaceNameFromIP(spec.Address)
	if err != nil {
		return "", fmt.Errorf("failed to calculate interface name for %s: %w", spec.Address, err)
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: spec.MemoryMiB,
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     spec.CPUCount,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
			BIOS: &libvirtxml.DomainBIOS{
				UseSerial: "yes",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-model",
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: &libvirtxml.DomainDeviceList{
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
		},
	}

	domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name:  "qemu",
			Type:  "raw",
			Cache: "none",
		},
		Source: &libvirtxml.DomainDiskSource{
			Block: &libvirtxml.DomainDiskSourceBlock{
				Dev: spec.DiskPath,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "vda",
			Bus: "virtio",
		},
		Boot: &libvirtxml.DomainDeviceBoot{
			Order: 1,
		},
	})

	if spec.SeedImagePath != "" {
		domain.Devices.Disks = append(domain.Devices.Disks, seedDisk(spec.SeedImagePath))
	}

	domain.Devices.Interfaces = []libvirtxml.DomainInterface{
		{
			MAC: &libvirtxml.DomainInterfaceMAC{
				Address: macAddr,
			},
			Source: &libvirtxml.DomainInterfaceSource{
				Bridge: &libvirtxml.DomainInterfaceSourceBridge{
					Bridge: spec.Bridge,
				},
			},
			Model: &libvirtxml.DomainInterfaceModel{
				Type: "virtio",
			},
			Target: &libvirtxml.DomainInterfaceTarget{
				Dev: ifaceName,
			},
		},
	}

	// Serial console only; no graphics device.
	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainSerialTarget{
				Port: uintPtr(0),
			},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainConsoleTarget{
				Type: "serial",
				Port: uintPtr(0),
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}

func seedDisk(path string) libvirtxml.DomainDisk {
	return libvirtxml.DomainDisk{
		Device: "cdrom",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "raw",
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{
				File: path,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: SeedDeviceTarget,
			Bus: "sata",
		},
		ReadOnly: &libvirtxml.DomainDiskReadOnly{},
	}
}

// SeedDeviceXML renders the device XML of the boot configuration cdrom, as
// needed to detach it.
func SeedDeviceXML(path string) (string, error) {
	disk := seedDisk(path)
	xml, err := disk.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal seed device XML: %w", err)
	}
	return xml, nil
}
