// Package ssh is the remote boundary of anvil: readiness probing, remote
// command execution, file upload, and known_hosts maintenance against
// freshly booted machines.
//
// Connections are opened per call. A machine is re-imaged on every replace,
// so its host key changes; callers purge the old key with PurgeHost and
// record the new one with RecordHost before running commands, after which
// Run and Upload verify the host key against the configured known_hosts
// file.
package ssh
