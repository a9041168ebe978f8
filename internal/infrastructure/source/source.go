// Package source opens the PNV product export from a local file, an S3
// bucket or the CMS export endpoint.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pnv/catalog-sync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrUnknownKind is returned by New for an unsupported source kind.
var ErrUnknownKind = errors.New("source: unknown kind")

// Fetcher opens the current export. The caller closes the reader.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// New builds the fetcher selected by cfg.Kind.
func New(ctx context.Context, cfg config.SourceConfig, logger *zap.Logger) (Fetcher, error) {
	switch cfg.Kind {
	case config.SourceFile, "":
		return NewFileSource(cfg.Path), nil
	case config.SourceS3:
		src, err := NewS3Source(ctx, S3Config{
			Bucket:       cfg.S3Bucket,
			Key:          cfg.S3Key,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKeyID,
			SecretKey:    cfg.S3SecretAccessKey,
			UsePathStyle: cfg.S3UsePathStyle,
		}, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceCMS:
		src, err := NewCMSSource(CMSConfig{
			BaseURL:   cfg.CMSBaseURL,
			ExportURL: cfg.CMSExportURL,
			User:      cfg.CMSUser,
			Pass:      cfg.CMSPass,
			Group:     cfg.CMSGroup,
			UserID:    cfg.CMSUserID,
			SavePath:  filepath.Join(cfg.DataDir, "pnv", "products.csv"),
		}, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
}

// FileSource reads the export from a local path.
type FileSource struct {
	Path string
}

// NewFileSource creates a file source.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Fetch opens the file.
func (s *FileSource) Fetch(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", s.Path, err)
	}
	return f, nil
}
