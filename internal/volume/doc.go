// Package volume manages LVM logical volumes as resources.
//
// A volume is created with lvcreate inside an existing volume group and
// removed with lvremove. Its identity is {volumeGroup}/{name} and its size
// is immutable: any change to the inputs replaces the volume.
package volume
