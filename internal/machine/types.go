package machine

import (
	"fmt"
	"strings"

	"github.com/jbweber/anvil/internal/naming"
)

// Script is a setup script and its arguments.
type Script struct {
	Path string   `json:"path" yaml:"path"`
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// ParseScript splits "path arg1 arg2" into a Script.
func ParseScript(s string) (Script, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Script{}, fmt.Errorf("empty setup script entry")
	}
	sc := Script{Path: fields[0]}
	if len(fields) > 1 {
		sc.Args = fields[1:]
	}
	return sc, nil
}

// FileCopy is a local file uploaded to RemotePath.
type FileCopy struct {
	LocalPath  string `json:"localPath" yaml:"localPath"`
	RemotePath string `json:"remotePath" yaml:"remotePath"`
}

// ParseFileCopy splits "local:remote" into a FileCopy.
func ParseFileCopy(s string) (FileCopy, error) {
	local, remote, ok := strings.Cut(s, ":")
	if !ok || local == "" || remote == "" {
		return FileCopy{}, fmt.Errorf("invalid file entry %q (expected local:remote)", s)
	}
	return FileCopy{LocalPath: local, RemotePath: remote}, nil
}

// Spec is the desired state of a machine. Every field is immutable once
// the machine exists.
type Spec struct {
	Name        string `json:"name" yaml:"name"`
	Address     string `json:"address" yaml:"address"`
	Gateway     string `json:"gateway" yaml:"gateway"`
	VolumeGroup string `json:"volumeGroup" yaml:"volumeGroup"`
	DiskSizeGiB int    `json:"diskSizeGiB" yaml:"diskSizeGiB"`
	CPUCount    int    `json:"cpuCount" yaml:"cpuCount"`
	RAMMiB      int    `json:"ramMiB" yaml:"ramMiB"`

	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Scripts     []Script          `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	Files       []FileCopy        `json:"files,omitempty" yaml:"files,omitempty"`
	ResultFiles map[string]string `json:"resultFiles,omitempty" yaml:"resultFiles,omitempty"`
}

// Validate checks the spec before anything is provisioned.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("machine name is required")
	}
	if s.VolumeGroup == "" {
		return fmt.Errorf("volume group is required")
	}
	if s.DiskSizeGiB <= 0 {
		return fmt.Errorf("disk size must be greater than 0, got %d", s.DiskSizeGiB)
	}
	if s.CPUCount <= 0 {
		return fmt.Errorf("cpu count must be greater than 0, got %d", s.CPUCount)
	}
	if s.RAMMiB <= 0 {
		return fmt.Errorf("ram must be greater than 0, got %d", s.RAMMiB)
	}
	if err := naming.CheckBridgeSubnet(s.Address, s.Gateway); err != nil {
		return err
	}
	for i, sc := range s.Scripts {
		if sc.Path == "" {
			return fmt.Errorf("setup script %d: path is required", i)
		}
	}
	for i, f := range s.Files {
		if f.LocalPath == "" || f.RemotePath == "" {
			return fmt.Errorf("file %d: local and remote paths are required", i)
		}
	}
	return nil
}

// DevicePath is the logical volume the machine boots from.
func (s Spec) DevicePath() string {
	return naming.DevicePath(s.VolumeGroup, s.Name)
}

// Outputs is the recorded state of a provisioned machine.
type Outputs struct {
	Address       string `json:"address" yaml:"address"`
	DevicePath    string `json:"devicePath" yaml:"devicePath"`
	SeedImagePath string `json:"seedImagePath" yaml:"seedImagePath"`

	// Result holds the trimmed contents of the result files. It is secret.
	Result map[string]string `json:"result,omitempty" yaml:"result,omitempty"`
}
