// Package metadata stores a machine's spec in libvirt domain metadata so it
// persists with the domain itself. The spec is kept as YAML text inside a
// namespaced element, readable when inspecting the domain XML directly.
package metadata
