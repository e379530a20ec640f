// Package media abstracts where uploaded gallery images live. The cloud
// media host is an external collaborator; DiskUploader is the bundled
// implementation that stores files locally and serves them from the app.
package media

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const thumbnailWidth = 480

// UploadResult describes a stored image.
type UploadResult struct {
	Ref          string // storage reference used for later deletion
	URL          string
	ThumbnailURL string
	Width        int
	Height       int
}

// Uploader stores and removes gallery images.
type Uploader interface {
	UploadImage(file *multipart.FileHeader) (*UploadResult, error)
	Delete(ref string) error
}

// DiskUploader keeps originals and thumbnails under one directory, served by
// the HTTP layer at baseURL.
type DiskUploader struct {
	dir     string
	baseURL string
}

// NewDiskUploader creates the storage directory if needed.
func NewDiskUploader(dir, baseURL string) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskUploader{dir: dir, baseURL: baseURL}, nil
}

// UploadImage decodes the upload, writes the original and a resized
// thumbnail, and returns their URLs.
func (u *DiskUploader) UploadImage(file *multipart.FileHeader) (*UploadResult, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	ref := uuid.NewString()
	name := ref + ".jpg"
	thumbName := ref + "_thumb.jpg"

	if err := imaging.Save(img, filepath.Join(u.dir, name), imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}

	thumb := img
	if img.Bounds().Dx() > thumbnailWidth {
		thumb = imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	}
	if err := imaging.Save(thumb, filepath.Join(u.dir, thumbName), imaging.JPEGQuality(80)); err != nil {
		os.Remove(filepath.Join(u.dir, name))
		return nil, fmt.Errorf("save thumbnail: %w", err)
	}

	bounds := img.Bounds()
	return &UploadResult{
		Ref:          ref,
		URL:          u.baseURL + "/" + name,
		ThumbnailURL: u.baseURL + "/" + thumbName,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
	}, nil
}

// Delete removes the original and thumbnail. Missing files are not an error.
func (u *DiskUploader) Delete(ref string) error {
	var firstErr error
	for _, name := range []string{ref + ".jpg", ref + "_thumb.jpg"} {
		if err := os.Remove(filepath.Join(u.dir, name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dir is the on-disk directory, for static file serving.
func (u *DiskUploader) Dir() string { return u.dir }
