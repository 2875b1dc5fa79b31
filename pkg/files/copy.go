package files

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// CopyFile copies src to dst, carrying over the source file mode. Used to
// stage kernel and disk images into machine working directories.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "failed to open source file")
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "failed to create destination file")
	}
	defer destFile.Close()

	if _, err = io.Copy(destFile, sourceFile); err != nil {
		return errors.Wrap(err, "failed to copy data")
	}
	if stat, err := sourceFile.Stat(); err == nil {
		destFile.Chmod(stat.Mode())
	}

	if err = destFile.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync destination file")
	}

	return nil
}
