// Package photos stores student photos on local disk or in Cloudinary.
package photos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"schoolattendance/internal/cloudinary"
)

// ErrNotImage is returned for uploads whose content is not an image.
var ErrNotImage = errors.New("photo must be an image")

// Storage saves, removes and addresses stored photos by reference.
type Storage interface {
	Save(ctx context.Context, filename string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
	URL(ref string) string
}

// DetectImage returns the file extension for image content or ErrNotImage.
func DetectImage(data []byte) (string, error) {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	case "image/bmp":
		return ".bmp", nil
	default:
		return "", ErrNotImage
	}
}

// Disk keeps photos under root/students and serves them from urlPrefix.
type Disk struct {
	root      string
	urlPrefix string
}

// NewDisk creates a disk store rooted at root.
func NewDisk(root, urlPrefix string) *Disk {
	return &Disk{root: root, urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

func (d *Disk) Save(_ context.Context, filename string, data []byte) (string, error) {
	ext, err := DetectImage(data)
	if err != nil {
		return "", err
	}
	ref := path.Join("students", uuid.NewString()+ext)
	full := filepath.Join(d.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write photo %s: %w", filename, err)
	}
	return ref, nil
}

func (d *Disk) Delete(_ context.Context, ref string) error {
	if ref == "" || strings.Contains(ref, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(d.root, filepath.FromSlash(ref)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (d *Disk) URL(ref string) string {
	return d.urlPrefix + "/" + ref
}

// Cloud stores photos in Cloudinary; references are public ids.
type Cloud struct {
	client *cloudinary.Client
}

// NewCloud wraps a configured Cloudinary client.
func NewCloud(client *cloudinary.Client) *Cloud {
	return &Cloud{client: client}
}

func (c *Cloud) Save(ctx context.Context, filename string, data []byte) (string, error) {
	if _, err := DetectImage(data); err != nil {
		return "", err
	}
	res, err := c.client.UploadBytes(ctx, data, filename)
	if err != nil {
		return "", err
	}
	return res.PublicID, nil
}

func (c *Cloud) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	return c.client.Destroy(ctx, ref)
}

func (c *Cloud) URL(ref string) string {
	return c.client.URL(ref)
}
