package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

const pingTimeout = 5 * time.Second

// Client stores upload objects in a single Cloud Storage bucket.
type Client struct {
	client *storage.Client
	bucket string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient opens a storage client for the configured bucket and verifies it
// is reachable. Credentials come from the inline JSON, then the file, then
// application default credentials.
func NewClient(ctx context.Context, cfg config.UploadsConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.GCSBucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	sc, err := storage.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	client := &Client{client: sc, bucket: bucket}
	if err := client.Ping(ctx); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", bucket), "gcs client initialized")
	}
	return client, nil
}

func clientOptions(cfg config.UploadsConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.GCSCredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GCSCredentialsJSON)))
	case strings.TrimSpace(cfg.GCSCredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	// emulators such as fake-gcs-server take no credentials
	if endpoint := strings.TrimSpace(cfg.GCSEndpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	return opts
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.client.Bucket(c.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("reading bucket attrs: %w", err)
	}
	return nil
}

// Put writes the object, replacing any existing content.
func (c *Client) Put(ctx context.Context, object, contentType string, r io.Reader) error {
	w := c.client.Bucket(c.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing gcs object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing gcs object %s: %w", object, err)
	}
	return nil
}

// Delete removes the object. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, object string) error {
	err := c.client.Bucket(c.bucket).Object(object).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting gcs object %s: %w", object, err)
	}
	return nil
}

// Open streams the object content.
func (c *Client) Open(ctx context.Context, object string) (io.ReadCloser, error) {
	r, err := c.client.Bucket(c.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("gcs object %s: %w", object, ErrNotFound)
		}
		return nil, fmt.Errorf("opening gcs object %s: %w", object, err)
	}
	return r, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ErrNotFound is wrapped when an object does not exist.
var ErrNotFound = errors.New("object not found")

func isNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
