// Package server composes a volume, a machine and a configuration run into
// one logical server.
//
// The three resources are registered with the engine under names derived
// from the hostname:
//
//	{hostname}-disk            volume the machine boots from
//	{hostname}                 machine, depends on the volume
//	{hostname}/{playbook}      configuration run, depends on the machine
//
// A server exposes its machine address and its configuration artifacts as
// Values other servers consume. Consuming a Value adds a dependency on the
// resource that produces it.
package server
