package cloudinit

import (
	"bytes"
	"fmt"

	"github.com/kdomanski/iso9660"
)

// VolumeLabel is the ISO volume identifier the NoCloud datasource looks for.
const VolumeLabel = "CIDATA"

// GenerateISO bundles docs into a NoCloud seed image with the files
// user-data, meta-data and network-config in the root directory.
func GenerateISO(docs *Documents) ([]byte, error) {
	if docs == nil {
		return nil, fmt.Errorf("boot documents cannot be nil")
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	defer func() {
		_ = writer.Cleanup()
	}()

	files := []struct {
		name string
		data string
	}{
		{"user-data", docs.UserData},
		{"meta-data", docs.MetaData},
		{"network-config", docs.NetworkConfig},
	}
	for _, f := range files {
		if err := writer.AddFile(bytes.NewReader([]byte(f.data)), f.name); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.name, err)
		}
	}

	var buf bytes.Buffer
	if err := writer.WriteTo(&buf, VolumeLabel); err != nil {
		return nil, fmt.Errorf("failed to write ISO image: %w", err)
	}

	return buf.Bytes(), nil
}
