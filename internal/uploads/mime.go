package uploads

import (
	"errors"
	"mime"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/angelmondragon/ohya-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/storage/gcs"
	"github.com/angelmondragon/ohya-backend/pkg/storage/local"
)

// ErrNotFound can be wrapped by backends for missing objects.
var ErrNotFound = errors.New("upload not found")

var allowedTypes = map[enums.UploadKind][]string{
	enums.UploadKindProductImage: {"image/jpeg", "image/png", "image/webp", "image/gif"},
	enums.UploadKindPaymentProof: {"image/jpeg", "image/png", "image/webp", "image/gif", "application/pdf"},
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// ValidateMIME sniffs data and returns the allowed content type it matches.
// A declared type, when given, must be allowed too and belong to the same
// family (image or application) as the sniffed one.
func ValidateMIME(kind enums.UploadKind, declared string, data []byte) (string, error) {
	detected := mimetype.Detect(data)
	contentType, ok := allowedType(kind, detected)
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file type not allowed").
			WithDetails(map[string]any{
				"detected": detected.String(),
				"allowed":  allowedTypes[kind],
			})
	}

	declared = strings.TrimSpace(declared)
	if declared == "" || declared == "application/octet-stream" {
		return contentType, nil
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid content type")
	}
	mediaType = strings.ToLower(mediaType)
	if !slices.Contains(allowedTypes[kind], mediaType) || family(mediaType) != family(contentType) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "declared content type does not match file").
			WithDetails(map[string]any{
				"declared": mediaType,
				"detected": contentType,
			})
	}
	return contentType, nil
}

func family(contentType string) string {
	major, _, _ := strings.Cut(contentType, "/")
	return major
}

// allowedType matches the sniffed type, or one of its parents, against the
// allow-list for the kind.
func allowedType(kind enums.UploadKind, detected *mimetype.MIME) (string, bool) {
	for m := detected; m != nil; m = m.Parent() {
		for _, candidate := range allowedTypes[kind] {
			if m.Is(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func contentTypeFor(object string) string {
	ext := strings.ToLower(path.Ext(object))
	for contentType, candidate := range extensions {
		if candidate == ext {
			return contentType
		}
	}
	return "application/octet-stream"
}

func isNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, gcs.ErrNotFound)
}
