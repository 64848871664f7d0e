// Package storage manages the libvirt storage that backs boot
// configuration seed images, and validates base disk images.
//
// Seed images live as volumes in a directory pool (DefaultSeedPool). The
// machine resource stores one seed per machine, attaches it as a cdrom for
// first boot, and removes it on delete:
//
//	mgr := storage.NewManager(client.Libvirt(), storage.DefaultSeedPool, storage.DefaultSeedPath)
//	path, err := mgr.StoreSeed(ctx, naming.SeedImageName("kube1"), isoBytes)
//
// Base images are copied onto logical volumes with dd, so they must be raw.
// DetectImageFormat reads magic bytes to tell raw images from qcow2:
//   - QCOW2: magic "QFI\xfb" at offset 0
//   - RAW: boot sector signature 0x55aa at offset 510
//
// The LibvirtClient interface lists only the *libvirt.Libvirt methods this
// package calls, so tests inject an in-memory fake.
package storage
