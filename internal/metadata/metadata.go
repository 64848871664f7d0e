package metadata

import (
	"encoding/xml"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"
)

const (
	// Namespace is the XML namespace of anvil metadata.
	Namespace = "https://github.com/jbweber/anvil/machine"

	// Key is the element prefix used for anvil metadata.
	Key = "anvil"
)

// LibvirtClient is the subset of *libvirt.Libvirt used for metadata.
type LibvirtClient interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, URI libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, URI libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// element is the XML wrapper around the YAML document.
type element struct {
	XMLName xml.Name `xml:"machine"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	YAML    string   `xml:",chardata"`
}

// Store serializes v to YAML and saves it on the domain's persistent
// configuration, replacing any earlier value.
func Store(client LibvirtClient, domain libvirt.Domain, v any) error {
	yamlData, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal spec to YAML: %w", err)
	}

	xmlData, err := xml.Marshal(element{Xmlns: Namespace, YAML: string(yamlData)})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	err = client.DomainSetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	if err != nil {
		return fmt.Errorf("failed to set domain metadata: %w", err)
	}
	return nil
}

// Load reads the domain's metadata into v.
func Load(client LibvirtClient, domain libvirt.Domain, v any) error {
	xmlStr, err := client.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	if err != nil {
		return fmt.Errorf("failed to get domain metadata: %w", err)
	}

	var el element
	if err := xml.Unmarshal([]byte(xmlStr), &el); err != nil {
		return fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	if err := yaml.Unmarshal([]byte(el.YAML), v); err != nil {
		return fmt.Errorf("failed to unmarshal spec from YAML: %w", err)
	}
	return nil
}

// Exists reports whether the domain carries anvil metadata.
func Exists(client LibvirtClient, domain libvirt.Domain) bool {
	_, err := client.DomainGetMetadata(
		domain,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	return err == nil
}
