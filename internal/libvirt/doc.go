// Package libvirt connects to the local hypervisor and renders the domain
// and device XML for provisioned machines.
//
// The Client wraps github.com/digitalocean/go-libvirt. Consumers do not
// depend on Client directly for domain operations; they declare the subset
// of *libvirt.Libvirt methods they call as their own interface (see
// internal/machine, internal/storage and internal/metadata) and receive
// Client.Libvirt() in production.
//
// A provisioned machine boots from a raw logical volume attached as a
// virtio block device, with its boot configuration seed image attached as a
// read-only SATA cdrom until first boot completes:
//
//	xml, err := libvirt.GenerateDomainXML(libvirt.DomainSpec{
//	    Name:          "kube1",
//	    CPUCount:      2,
//	    MemoryMiB:     1024,
//	    DiskPath:      "/dev/vg0/kube1",
//	    SeedImagePath: "/var/lib/libvirt/images/anvil-seeds/user-data-kube1.iso",
//	    Bridge:        "br10",
//	    Address:       "10.0.0.11",
//	})
package libvirt
