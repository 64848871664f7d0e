// Package resource defines the lifecycle contract shared by every resource
// kind anvil manages, and the error taxonomy those resources report.
//
// A resource kind implements Provider: Create brings the resource into
// existence and returns its identity plus outputs, Diff decides whether new
// inputs require an in-place Update or a replacement, and Delete tears the
// resource down. The engine package drives these calls; providers never call
// each other directly.
//
// The set of kinds is closed: Volume, Machine, Configuration and Server.
package resource
