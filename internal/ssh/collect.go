package ssh

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/resource"
)

// Runner runs a command on a remote host.
type Runner interface {
	Run(ctx context.Context, host, cmd string) (command.Result, error)
}

// ReadFiles reads each remote file in files with cat and returns its
// contents, trimmed of surrounding whitespace, under the same name. Files
// are read in name order; the first failure stops the read.
func ReadFiles(ctx context.Context, r Runner, host string, files map[string]string) (map[string]string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(files))
	for _, name := range names {
		cmd := "cat " + Quote(files[name])
		res, err := r.Run(ctx, host, cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if !res.Success() {
			return nil, &resource.ProvisioningError{
				Op:       "read " + name,
				Command:  cmd,
				ExitCode: res.ExitCode,
				Output:   res.Output(),
			}
		}
		out[name] = strings.TrimSpace(res.Stdout)
	}
	return out, nil
}
