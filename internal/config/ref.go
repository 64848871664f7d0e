package config

import (
	"fmt"
	"regexp"
	"strings"
)

// RefField is the output of a server a Ref points at.
type RefField string

const (
	// RefAddress is the machine address of a server.
	RefAddress RefField = "address"
	// RefArtifact is one configuration artifact of a server.
	RefArtifact RefField = "artifacts"
)

// Ref is a reference to the output of another server in the same stack,
// written ${server.address} or ${server.artifacts.key}.
type Ref struct {
	Server string
	Field  RefField
	Key    string
}

func (r Ref) String() string {
	if r.Field == RefArtifact {
		return fmt.Sprintf("${%s.%s.%s}", r.Server, r.Field, r.Key)
	}
	return fmt.Sprintf("${%s.%s}", r.Server, r.Field)
}

var refPattern = regexp.MustCompile(`^\$\{([a-z0-9][a-z0-9_-]*)\.(address|artifacts\.([A-Za-z0-9_.-]+))\}$`)

// ParseRef parses value as a reference. ok is false for literal values.
// A value that looks like a reference but is malformed is an error.
func ParseRef(value string) (ref Ref, ok bool, err error) {
	if !strings.Contains(value, "${") {
		return Ref{}, false, nil
	}

	m := refPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return Ref{}, false, fmt.Errorf("invalid reference %q (expected ${server.address} or ${server.artifacts.key})", value)
	}

	ref = Ref{Server: m[1], Field: RefAddress}
	if m[3] != "" {
		ref.Field = RefArtifact
		ref.Key = m[3]
	}
	return ref, true, nil
}
