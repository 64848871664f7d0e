// Package status tracks the bring-up phase of a machine.
//
// A machine moves through a fixed, strictly ordered list of phases. The
// Tracker accepts only the next phase in that order and records when each
// transition happened.
package status
