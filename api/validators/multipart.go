package validators

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/angelmondragon/ohya-backend/internal/uploads"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
)

// multipartMemory is how much of a form is buffered before spilling to disk.
const multipartMemory = 8 << 20

// IsMultipart reports whether the request carries a multipart/form-data body.
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// ParseMultipart caps the body at maxBytes and parses the form. The caller
// owns r.MultipartForm and should call RemoveAll once done.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").WithDetails(map[string]any{"limitBytes": tooLarge.Limit})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}
	return nil
}

// FormFile returns the upload under field, or nil when the field is absent.
// Release it with CloseFile.
func FormFile(r *http.Request, field string) (*uploads.File, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, nil
	}
	header := r.MultipartForm.File[field][0]
	f, err := header.Open()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable upload").WithDetails(map[string]any{"field": field})
	}
	return &uploads.File{
		Filename:    header.Filename,
		ContentType: strings.TrimSpace(header.Header.Get("Content-Type")),
		Size:        header.Size,
		Reader:      f,
	}, nil
}

// CloseFile closes the reader behind an upload returned by FormFile.
func CloseFile(f *uploads.File) {
	if f == nil {
		return
	}
	if c, ok := f.Reader.(io.Closer); ok {
		_ = c.Close()
	}
}
