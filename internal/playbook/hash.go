package playbook

import (
	"crypto/md5" //nolint:gosec // change detection, not security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// hashChunkSize is the read size used when hashing a playbook.
const hashChunkSize = 64 * 1024

// HashFile returns the hex MD5 of the file at path, read in 64 KiB chunks.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open playbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := md5.New() //nolint:gosec
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read playbook: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
