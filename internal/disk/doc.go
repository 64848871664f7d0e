// Package disk images a raw base installation onto a block device and grows
// it to the requested size.
package disk
