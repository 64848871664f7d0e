package machine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/ssh"
)

// RemoteScriptPath is where each setup script is staged before it runs.
const RemoteScriptPath = "/root/tmpscript"

// envPrefix renders env as "K=V K=V " with keys sorted.
func envPrefix(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(ssh.Quote(env[k]))
		b.WriteByte(' ')
	}
	return b.String()
}

// scriptCommand renders the remote command line for one setup script.
func scriptCommand(prefix string, args []string) string {
	parts := []string{prefix + RemoteScriptPath}
	for _, a := range args {
		parts = append(parts, ssh.Quote(a))
	}
	return strings.Join(parts, " ")
}

// localPath resolves a script or file path under the scripts directory.
func (p *Provider) localPath(path string) string {
	if p.opts.ScriptsDir == "" {
		return path
	}
	return filepath.Join(p.opts.ScriptsDir, path)
}

// runRemote runs cmd on addr and turns a non-zero exit into a
// *resource.ProvisioningError tagged with op.
func (p *Provider) runRemote(ctx context.Context, addr, op, cmd string) error {
	res, err := p.remote.Run(ctx, addr, cmd)
	if err != nil {
		return err
	}
	if !res.Success() {
		return &resource.ProvisioningError{
			Op:       op,
			Command:  cmd,
			ExitCode: res.ExitCode,
			Output:   res.Output(),
		}
	}
	return nil
}

// runSetup uploads and runs each setup script in order, then copies each
// file in order. The first failure stops the sequence.
func (p *Provider) runSetup(ctx context.Context, spec Spec) error {
	prefix := envPrefix(spec.Env)

	for _, script := range spec.Scripts {
		op := "setup script " + script.Path
		p.logger.Infof("Running setup script %s...", script.Path)

		if err := p.remote.Upload(ctx, spec.Address, p.localPath(script.Path), RemoteScriptPath); err != nil {
			return fmt.Errorf("failed to upload setup script %s: %w", script.Path, err)
		}
		if err := p.runRemote(ctx, spec.Address, op, command.Line("chmod", "777", RemoteScriptPath)); err != nil {
			return err
		}
		if err := p.runRemote(ctx, spec.Address, op, scriptCommand(prefix, script.Args)); err != nil {
			return err
		}
	}

	for _, f := range spec.Files {
		p.logger.Infof("Copying %s to %s...", f.LocalPath, f.RemotePath)
		if err := p.remote.Upload(ctx, spec.Address, p.localPath(f.LocalPath), f.RemotePath); err != nil {
			return fmt.Errorf("failed to copy %s: %w", f.LocalPath, err)
		}
	}

	return nil
}
