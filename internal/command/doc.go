// Package command runs host-local processes.
//
// Every host-side effect anvil performs that is not a hypervisor RPC
// (logical volume management, disk imaging, playbook runs) goes through a
// single Executor so tests can substitute a recording fake.
package command
