// Package config loads the files anvil is driven by: server descriptors,
// the stack file that groups them, and the host settings of the
// hypervisor anvil runs on.
//
// Every loader follows the same sequence: read, unmarshal, normalize and
// apply defaults, validate.
package config
