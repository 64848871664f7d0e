package disk

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/logging"
	"github.com/jbweber/anvil/internal/storage"
)

// DefaultBlockSize is the dd block size used when copying the base image.
const DefaultBlockSize = "4M"

// Imager copies a base image onto a device.
type Imager struct {
	exec      command.Executor
	blockSize string
	logger    *zap.SugaredLogger

	// checkFormat validates the base image before it is copied.
	checkFormat func(path string) error
}

// NewImager creates an Imager running its commands through exec.
func NewImager(exec command.Executor, logger *zap.SugaredLogger) *Imager {
	return &Imager{
		exec:        exec,
		blockSize:   DefaultBlockSize,
		logger:      logging.OrNop(logger),
		checkFormat: storage.RequireRaw,
	}
}

// Image writes baseImage onto devicePath and resizes the device to sizeGiB.
// The base image must be raw.
func (i *Imager) Image(ctx context.Context, baseImage, devicePath string, sizeGiB int) error {
	if baseImage == "" {
		return fmt.Errorf("base image is required")
	}
	if devicePath == "" {
		return fmt.Errorf("device path is required")
	}
	if sizeGiB <= 0 {
		return fmt.Errorf("disk size must be greater than 0, got %d", sizeGiB)
	}

	if err := i.checkFormat(baseImage); err != nil {
		return fmt.Errorf("failed to validate base image: %w", err)
	}

	i.logger.Infof("Copying %s to %s...", baseImage, devicePath)
	if _, err := command.Check(ctx, i.exec, "copy base image", "dd",
		"if="+baseImage, "of="+devicePath, "bs="+i.blockSize); err != nil {
		return err
	}

	i.logger.Infof("Resizing %s to %dG...", devicePath, sizeGiB)
	if _, err := command.Check(ctx, i.exec, "resize disk", "qemu-img",
		"resize", "-f", "raw", devicePath, fmt.Sprintf("%dG", sizeGiB)); err != nil {
		return err
	}

	return nil
}
