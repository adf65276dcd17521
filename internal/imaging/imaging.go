// Package imaging holds the opaque image handle passed between the workflow
// engine and the generation backend, plus the local decode helpers the
// workflow needs before issuing dimension-dependent calls.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"os"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Image is raw encoded image data plus its MIME type.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// IsZero reports whether the handle carries no data.
func (im Image) IsZero() bool {
	return len(im.Data) == 0
}

// Dimensions decodes just enough of the image to obtain its pixel size.
func (im Image) Dimensions() (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(im.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// DataURL encodes the image as a data: URL for JSON transport.
func (im Image) DataURL() string {
	if im.IsZero() {
		return ""
	}
	return "data:" + im.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(im.Data)
}

// ParseDataURL decodes a base64 data: URL back into an Image.
func ParseDataURL(url string) (Image, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return Image{}, fmt.Errorf("not a data URL")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("malformed data URL: missing payload")
	}

	mimeType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return Image{}, fmt.Errorf("unsupported data URL encoding %q", encoding)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode data URL payload: %w", err)
	}

	return Image{Data: data, MIMEType: mimeType}, nil
}

// ReadFile loads an image from disk, sniffing the MIME type from content.
func ReadFile(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image file: %w", err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("image file %s is empty", path)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("%s is not an image (detected %s)", path, mimeType)
	}

	return Image{Data: data, MIMEType: mimeType}, nil
}

// Ext returns a file extension for the image's MIME type.
func (im Image) Ext() string {
	switch im.MIMEType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ".img"
	}
}
