package glance

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/chriskillpack/glance/dataurl"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrNoFile          = errors.New("no image uploaded")
)

// acceptedTypes maps the upload extensions to the MIME type they imply.
var acceptedTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

// AcceptedExtensions returns the file extensions the upload surface accepts,
// in display order.
func AcceptedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif"}
}

// Image is an uploaded image held in memory for the duration of one analysis.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURL encodes the image as data:<mime>;base64,<payload>.
func (img Image) DataURL() string {
	return dataurl.Encode(img.MIMEType, img.Data)
}

// ValidateUpload checks an uploaded file's name and declared content type and
// returns the MIME type to use for it. A missing or generic declared type is
// replaced by the type implied by the extension.
func ValidateUpload(filename, declared string) (string, error) {
	if filename == "" {
		return "", ErrNoFile
	}

	ext := strings.ToLower(filepath.Ext(filename))
	implied, ok := acceptedTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedType, filename, strings.Join(AcceptedExtensions(), ", "))
	}

	if declared == "" {
		return implied, nil
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrUnsupportedType, declared, err)
	}
	switch mt {
	case "application/octet-stream":
		return implied, nil
	case "image/jpg", "image/pjpeg":
		mt = "image/jpeg"
	}
	for _, t := range acceptedTypes {
		if t == mt {
			return mt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, declared)
}
