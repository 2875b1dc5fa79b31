package files

import (
	"context"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

type FileStorage struct {
	cl     *minio.Client
	Bucket string
}

type Config struct {
	Url      string
	Login    string
	Password string
	Bucket   string
}

func NewFileStorage(cfg Config) *FileStorage {
	client, err := minio.New(cfg.Url, &minio.Options{
		Creds: credentials.NewStaticV4(cfg.Login, cfg.Password, ""),
	})
	if err != nil {
		panic(err)
	}
	return &FileStorage{cl: client, Bucket: cfg.Bucket}
}

// GetFile streams a stored kernel image.
func (s *FileStorage) GetFile(ctx context.Context, filename string) (io.ReadCloser, error) {
	file, err := s.cl.GetObject(ctx, s.Bucket, filename, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// FetchFile downloads a stored kernel image to dst so the emulator can read
// it from the local filesystem.
func (s *FileStorage) FetchFile(ctx context.Context, filename, dst string) error {
	file, err := s.GetFile(ctx, filename)
	if err != nil {
		return errors.Wrap(err, "failed to get image")
	}
	defer file.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "failed to create image file")
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return errors.Wrapf(err, "failed to download %s", filename)
	}
	return nil
}
