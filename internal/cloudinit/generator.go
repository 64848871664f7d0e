// Package cloudinit renders the boot-time configuration documents injected
// into a freshly imaged machine, and bundles them into a NoCloud seed image.
//
// Three documents are produced: user-data (cloud-config), meta-data and a
// version 1 network-config. Rendering is pure and byte-reproducible: the
// same Input always yields the same documents.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultInterface is the first virtio NIC name on Debian cloud images.
	DefaultInterface = "enp1s0"
	// DefaultPrefixLength is the bridge network prefix.
	DefaultPrefixLength = 24
	// DefaultImageUser is the account shipped in the base image that is
	// removed on first boot.
	DefaultImageUser = "debian"
)

// instanceNamespace seeds deterministic instance ids.
var instanceNamespace = uuid.MustParse("6f1a0c8e-3b7d-5e2a-9c41-0d8f7b2e6a15")

// Input is everything the boot documents are rendered from.
type Input struct {
	Hostname string
	Address  string
	Gateway  string

	// Interface defaults to DefaultInterface.
	Interface string
	// PrefixLength defaults to DefaultPrefixLength.
	PrefixLength int
	// ImageUser defaults to DefaultImageUser.
	ImageUser string

	RootPassword   string
	AuthorizedKeys []string
}

// Documents holds the rendered boot documents.
type Documents struct {
	UserData      string
	MetaData      string
	NetworkConfig string
}

// UserData is the cloud-config document.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	DisableRoot       bool      `yaml:"disable_root"`
	Hostname          string    `yaml:"hostname"`
	Password          string    `yaml:"password,omitempty"`
	Chpasswd          *Chpasswd `yaml:"chpasswd,omitempty"`
	SSHPasswordAuth   bool      `yaml:"ssh_pwauth"`
	SSHDeleteKeys     bool      `yaml:"ssh_deletekeys"`
	SSHAuthorizedKeys []string  `yaml:"ssh_authorized_keys,omitempty"`
	RunCmd            []string  `yaml:"runcmd,omitempty"`
	ManageResolvConf  bool      `yaml:"manage_resolv_conf"`
}

// Chpasswd configures password expiry.
type Chpasswd struct {
	Expire bool `yaml:"expire"`
}

// MetaData is the NoCloud meta-data document.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// NetworkConfig is a version 1 network configuration.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/network-config-format-v1.html
type NetworkConfig struct {
	Version int            `yaml:"version"`
	Config  []NetworkEntry `yaml:"config"`
}

// NetworkEntry is a physical interface or a nameserver entry.
type NetworkEntry struct {
	Type      string   `yaml:"type"`
	Name      string   `yaml:"name,omitempty"`
	Interface string   `yaml:"interface,omitempty"`
	Address   []string `yaml:"address,omitempty"`
	Subnets   []Subnet `yaml:"subnets,omitempty"`
}

// Subnet is a static address assignment.
type Subnet struct {
	Type    string `yaml:"type"`
	Address string `yaml:"address"`
	Gateway string `yaml:"gateway,omitempty"`
}

func (in Input) withDefaults() Input {
	if in.Interface == "" {
		in.Interface = DefaultInterface
	}
	if in.PrefixLength == 0 {
		in.PrefixLength = DefaultPrefixLength
	}
	if in.ImageUser == "" {
		in.ImageUser = DefaultImageUser
	}
	return in
}

func (in Input) validate() error {
	if in.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if ip := net.ParseIP(in.Address); ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid IPv4 address: %q", in.Address)
	}
	if ip := net.ParseIP(in.Gateway); ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid IPv4 gateway: %q", in.Gateway)
	}
	if in.PrefixLength < 1 || in.PrefixLength > 32 {
		return fmt.Errorf("invalid prefix length: %d", in.PrefixLength)
	}
	return nil
}

// InstanceID returns the deterministic instance id for a hostname and
// address. A replaced machine keeps its instance id only when both are
// unchanged.
func InstanceID(hostname, address string) string {
	return uuid.NewSHA1(instanceNamespace, []byte(hostname+"/"+address)).String()
}

// Render produces the boot documents for in.
func Render(in Input) (*Documents, error) {
	in = in.withDefaults()
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("invalid boot configuration: %w", err)
	}

	userData, err := GenerateUserData(in)
	if err != nil {
		return nil, err
	}
	metaData, err := GenerateMetaData(in)
	if err != nil {
		return nil, err
	}
	networkConfig, err := GenerateNetworkConfig(in)
	if err != nil {
		return nil, err
	}

	return &Documents{
		UserData:      userData,
		MetaData:      metaData,
		NetworkConfig: networkConfig,
	}, nil
}

// GenerateUserData renders the cloud-config document, including the
// "#cloud-config" header.
func GenerateUserData(in Input) (string, error) {
	in = in.withDefaults()

	userData := UserData{
		DisableRoot:       false,
		Hostname:          in.Hostname,
		Password:          in.RootPassword,
		SSHPasswordAuth:   true,
		SSHDeleteKeys:     false,
		SSHAuthorizedKeys: in.AuthorizedKeys,
		RunCmd: []string{
			"userdel -r " + in.ImageUser,
			"echo network: {config: disabled} > /etc/cloud/cloud.cfg.d/99-disable-network-config.cfg",
			"sed -i -e '/^#PermitRootLogin/s/^.*$/PermitRootLogin yes/' /etc/ssh/sshd_config",
		},
		ManageResolvConf: false,
	}
	if in.RootPassword != "" {
		userData.Chpasswd = &Chpasswd{Expire: false}
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData renders the meta-data document.
func GenerateMetaData(in Input) (string, error) {
	metaData := MetaData{
		InstanceID:    InstanceID(in.Hostname, in.Address),
		LocalHostname: in.Hostname,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

// GenerateNetworkConfig renders a static address on the machine's single
// interface, with the gateway doubling as nameserver.
func GenerateNetworkConfig(in Input) (string, error) {
	in = in.withDefaults()

	networkConfig := NetworkConfig{
		Version: 1,
		Config: []NetworkEntry{
			{
				Type: "physical",
				Name: in.Interface,
				Subnets: []Subnet{
					{
						Type:    "static",
						Address: fmt.Sprintf("%s/%d", in.Address, in.PrefixLength),
						Gateway: in.Gateway,
					},
				},
			},
			{
				Type:      "nameserver",
				Interface: in.Interface,
				Address:   []string{in.Gateway},
			},
		},
	}

	yamlBytes, err := yaml.Marshal(&networkConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal network-config to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
