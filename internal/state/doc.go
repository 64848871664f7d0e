// Package state persists the recorded state of every resource anvil
// manages: its kind, identity, inputs and outputs.
//
// Records live in a Badger database, one JSON value per resource keyed by
// "resource:{urn}". A record is written on first create, replaced wholesale
// on update and erased on delete.
package state
