package catalog

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// ImageStore writes uploaded catalog images to disk, scaled down to a bounded width.
type ImageStore struct {
	dir       string
	publicURL string
	maxWidth  int
}

// NewImageStore stores files under dir and reports them under publicURL (e.g. "/uploads").
func NewImageStore(dir, publicURL string, maxWidth int) *ImageStore {
	if maxWidth <= 0 {
		maxWidth = 1200
	}
	return &ImageStore{dir: dir, publicURL: publicURL, maxWidth: maxWidth}
}

// Save decodes src, resizes it when wider than the limit and writes it as JPEG.
// It returns the public path of the stored file.
func (s *ImageStore) Save(kind Kind, id string, src io.Reader) (string, error) {
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
	}

	folder := filepath.Join(s.dir, kind.Plural())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}
	name := id + ".jpg"
	if err := imaging.Save(img, filepath.Join(folder, name), imaging.JPEGQuality(85)); err != nil {
		return "", err
	}
	return path.Join(s.publicURL, kind.Plural(), name), nil
}
