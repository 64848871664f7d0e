package playbook

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/resource"
	"github.com/jbweber/anvil/internal/ssh"
)

// DefaultBinary is the playbook runner invoked when Options.Binary is empty.
const DefaultBinary = "ansible-playbook"

// Spec is the desired state of a configuration run.
type Spec struct {
	HostName      string            `json:"hostName" yaml:"hostName"`
	SourcePath    string            `json:"sourcePath" yaml:"sourcePath"`
	TargetAddress string            `json:"targetAddress" yaml:"targetAddress"`
	Env           map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// Artifacts maps an artifact name to the remote file it is read from.
	Artifacts map[string]string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// Validate checks the spec before the playbook is run.
func (s Spec) Validate() error {
	if s.HostName == "" {
		return fmt.Errorf("host name is required")
	}
	if s.SourcePath == "" {
		return fmt.Errorf("playbook path is required")
	}
	if s.TargetAddress == "" {
		return fmt.Errorf("target address is required")
	}
	return nil
}

// Outputs is the recorded state of a configuration run. Artifacts are
// secret.
type Outputs struct {
	Artifacts map[string]string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Hash      string            `json:"hash" yaml:"hash"`
}

// Options configure how the playbook runner reaches hosts.
type Options struct {
	// Binary defaults to DefaultBinary.
	Binary string
	// User is passed as --user when set.
	User string
	// PrivateKeyPath is passed as --private-key when set.
	PrivateKeyPath string
	// KnownHostsPath is the known_hosts file ssh checks host keys against.
	// It must be the file machine readiness records keys in.
	KnownHostsPath string
}

// Provider implements resource.Provider for configuration runs.
type Provider struct {
	exec   command.Executor
	remote ssh.Runner
	opts   Options
	logger *zap.SugaredLogger

	hash func(path string) (string, error)
}

var _ resource.Provider[Spec, Outputs] = (*Provider)(nil)

// NewProvider creates a configuration Provider. Playbooks run through exec;
// artifacts are read through remote.
func NewProvider(exec command.Executor, remote ssh.Runner, opts Options, logger *zap.SugaredLogger) *Provider {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	return &Provider{
		exec:   exec,
		remote: remote,
		opts:   opts,
		logger: logging.OrNop(logger),
		hash:   HashFile,
	}
}

// Kind implements resource.Provider.
func (p *Provider) Kind() resource.Kind {
	return resource.KindConfiguration
}

// ID implements resource.Provider.
func (p *Provider) ID(spec Spec) string {
	return naming.ConfigurationID(spec.HostName, spec.SourcePath)
}

// Create runs the playbook and reads back the declared artifacts.
func (p *Provider) Create(ctx context.Context, spec Spec) (string, Outputs, error) {
	outs, err := p.apply(ctx, spec)
	if err != nil {
		return "", Outputs{}, err
	}
	return p.ID(spec), outs, nil
}

// Diff reports a change only when the playbook's content hash differs from
// the recorded one. Other input changes are ignored.
func (p *Provider) Diff(_ context.Context, _ string, _ Spec, olds Outputs, news Spec) (resource.DiffResult, error) {
	hash, err := p.hash(news.SourcePath)
	if err != nil {
		return resource.DiffResult{}, err
	}
	if hash == olds.Hash {
		return resource.NoChanges, nil
	}
	return resource.DiffResult{Changes: true, Fields: []string{"sourcePath"}}, nil
}

// Update runs the playbook again and returns refreshed outputs.
func (p *Provider) Update(ctx context.Context, _ string, _ Spec, _ Outputs, news Spec) (Outputs, error) {
	return p.apply(ctx, news)
}

// Delete has no effect on the host; the recorded state is simply dropped.
func (p *Provider) Delete(_ context.Context, id string, _ Spec, _ Outputs) error {
	p.logger.Infof("Forgetting configuration %s...", id)
	return nil
}

func (p *Provider) apply(ctx context.Context, spec Spec) (Outputs, error) {
	if err := spec.Validate(); err != nil {
		return Outputs{}, fmt.Errorf("invalid configuration spec: %w", err)
	}

	// Step 1: run
	if err := p.play(ctx, spec); err != nil {
		return Outputs{}, err
	}

	// Step 2: hash
	hash, err := p.hash(spec.SourcePath)
	if err != nil {
		return Outputs{}, err
	}

	// Step 3: artifacts
	var artifacts map[string]string
	if len(spec.Artifacts) > 0 {
		p.logger.Infof("Reading %d artifacts from %s...", len(spec.Artifacts), spec.TargetAddress)
		artifacts, err = ssh.ReadFiles(ctx, p.remote, spec.TargetAddress, spec.Artifacts)
		if err != nil {
			return Outputs{}, fmt.Errorf("failed to read artifacts: %w", err)
		}
	}

	return Outputs{Artifacts: artifacts, Hash: hash}, nil
}

// Args returns the runner arguments for spec.
func (p *Provider) Args(spec Spec) ([]string, error) {
	env := spec.Env
	if env == nil {
		env = map[string]string{}
	}
	extraVars, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extra vars: %w", err)
	}

	args := []string{"-i", spec.TargetAddress + ",", "--extra-vars", string(extraVars)}
	if p.opts.User != "" {
		args = append(args, "--user", p.opts.User)
	}
	if p.opts.PrivateKeyPath != "" {
		args = append(args, "--private-key", p.opts.PrivateKeyPath)
	}
	if p.opts.KnownHostsPath != "" {
		args = append(args, "--ssh-common-args", "-o UserKnownHostsFile="+p.opts.KnownHostsPath)
	}
	return append(args, spec.SourcePath), nil
}

func (p *Provider) play(ctx context.Context, spec Spec) error {
	args, err := p.Args(spec)
	if err != nil {
		return err
	}

	p.logger.Infof("Running playbook %s against %s...", spec.SourcePath, spec.TargetAddress)
	res, err := p.exec.Run(ctx, p.opts.Binary, args...)
	if err != nil {
		return fmt.Errorf("failed to run playbook %s: %w", spec.SourcePath, err)
	}
	if !res.Success() {
		return &resource.ConfigurationRunError{
			Playbook: spec.SourcePath,
			Host:     spec.TargetAddress,
			ExitCode: res.ExitCode,
			Stderr:   res.Output(),
		}
	}
	return nil
}
