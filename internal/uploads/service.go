package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

// RefPrefix starts every stored file reference.
const RefPrefix = "uploads/"

const bytesPerMB = 1 << 20

// File is an uploaded file as received from the client. Size and ContentType
// are the client's claims; the service enforces the limit while reading and
// sniffs the content.
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Backend persists objects addressed by a slash separated key.
type Backend interface {
	Put(ctx context.Context, object, contentType string, r io.Reader) error
	Delete(ctx context.Context, object string) error
	Open(ctx context.Context, object string) (io.ReadCloser, error)
}

// Service validates uploads and stores them under generated names.
type Service struct {
	backend Backend
	limits  map[enums.UploadKind]int64
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the file intake on top of a storage backend.
func NewService(backend Backend, cfg config.UploadsConfig, logg *logger.Logger) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("upload backend required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		backend: backend,
		limits: map[enums.UploadKind]int64{
			enums.UploadKindProductImage: megabytes(cfg.MaxImageMB, 5),
			enums.UploadKindPaymentProof: megabytes(cfg.MaxProofMB, 10),
		},
		logg: logg,
		now:  time.Now,
	}, nil
}

// Store validates the file and returns its stored reference, for example
// uploads/payments/1709251200000-<uuid>.png.
func (s *Service) Store(ctx context.Context, kind enums.UploadKind, file File) (string, error) {
	if !kind.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown upload kind").
			WithDetails(map[string]any{"kind": kind.String()})
	}
	if file.Reader == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file is required")
	}

	limit := s.limits[kind]
	if file.Size > limit {
		return "", tooLarge(limit)
	}
	data, err := io.ReadAll(io.LimitReader(file.Reader, limit+1))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload")
	}
	if int64(len(data)) > limit {
		return "", tooLarge(limit)
	}
	if len(data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}

	contentType, err := ValidateMIME(kind, file.ContentType, data)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), extensions[contentType])
	object := path.Join(kind.Dir(), name)
	if err := s.backend.Put(ctx, object, contentType, bytes.NewReader(data)); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store upload")
	}

	ref := RefPrefix + object
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"upload_ref":   ref,
		"content_type": contentType,
		"size":         len(data),
	}), "upload stored")
	return ref, nil
}

// Remove deletes a stored file. Unknown references are rejected.
func (s *Service) Remove(ctx context.Context, ref string) error {
	object, err := objectFromRef(ref)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, object); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove upload")
	}
	return nil
}

// Open streams a stored file and reports its content type.
func (s *Service) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	object, err := objectFromRef(ref)
	if err != nil {
		return nil, "", err
	}
	rc, err := s.backend.Open(ctx, object)
	if err != nil {
		if errors.Is(err, ErrNotFound) || isNotFound(err) {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "upload not found")
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open upload")
	}
	return rc, contentTypeFor(object), nil
}

// objectFromRef turns uploads/<dir>/<name> back into a backend key.
func objectFromRef(ref string) (string, error) {
	object, ok := strings.CutPrefix(strings.TrimSpace(ref), RefPrefix)
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid upload reference")
	}
	dir, name, found := strings.Cut(object, "/")
	if !found || name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") || !knownDir(dir) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid upload reference")
	}
	return object, nil
}

func knownDir(dir string) bool {
	for _, kind := range []enums.UploadKind{enums.UploadKindProductImage, enums.UploadKindPaymentProof} {
		if kind.Dir() == dir {
			return true
		}
	}
	return false
}

func tooLarge(limit int64) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "file too large").
		WithDetails(map[string]any{"maxBytes": limit})
}

func megabytes(mb int, fallback int) int64 {
	if mb <= 0 {
		mb = fallback
	}
	return int64(mb) * bytesPerMB
}
