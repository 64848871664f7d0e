// Package engine runs a graph of resources against the recorded state.
//
// Resources are registered with their provider, a function producing their
// inputs, and their dependencies. Inputs are resolved lazily, right before
// the resource is processed, so they may read the outputs of resources it
// depends on through a Handle.
//
// Up walks the graph in dependency order and, for each resource, creates
// it, updates or replaces it when Diff reports changes, or leaves it alone.
// Resources recorded in state but no longer registered are deleted. Destroy
// deletes every recorded resource in reverse dependency order. Preview
// reports what Up would do without calling Create, Update or Delete.
package engine
