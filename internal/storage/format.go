package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

var (
	// qcow2Magic is "QFI\xfb", the first four bytes of every QCOW2 image.
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// bootSignature ends the first 512-byte sector of MBR disks and of the
	// protective MBR on GPT disks.
	bootSignature = []byte{0x55, 0xaa}
)

// DetectImageFormat reads magic bytes to classify a disk image as qcow2 or
// bootable raw. Anything else is an error.
func DetectImageFormat(filePath string) (VolumeFormat, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	magic := make([]byte, len(qcow2Magic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return "", fmt.Errorf("image too small to identify: %w", err)
	}
	if bytes.Equal(magic, qcow2Magic) {
		return VolumeFormatQCOW2, nil
	}

	sig := make([]byte, len(bootSignature))
	if _, err := f.ReadAt(sig, 510); err != nil {
		return "", fmt.Errorf("image too small for a boot sector: %w", err)
	}
	if bytes.Equal(sig, bootSignature) {
		return VolumeFormatRaw, nil
	}

	return "", fmt.Errorf("unsupported image %s: not qcow2 and no boot sector signature", filePath)
}

// RequireRaw returns an error unless filePath is a bootable raw image.
func RequireRaw(filePath string) error {
	format, err := DetectImageFormat(filePath)
	if err != nil {
		return err
	}
	if format != VolumeFormatRaw {
		return fmt.Errorf("base image %s is %s, a raw image is required", filePath, format)
	}
	return nil
}
