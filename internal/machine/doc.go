// Package machine provisions virtual machines on the local hypervisor.
//
// Create drives a machine through its bring-up phases: the boot
// configuration image is rendered and stored, the base image is copied onto
// the machine's logical volume, the domain is defined and booted, setup
// scripts run once SSH answers, the boot configuration media is detached,
// and the machine is restarted and read for its result files.
//
// Every hypervisor, SSH and process dependency is a small interface so the
// whole sequence runs against test doubles.
package machine
