package objstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"go-trip-pipeline/internal/model"
)

// GCSConfig selects the bucket and how to authenticate.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
	// EmulatorHost points the client at a fake-gcs-server; authentication is
	// skipped.
	EmulatorHost string `yaml:"emulator_host"`
}

// GCSLister lists objects of one Cloud Storage bucket.
type GCSLister struct {
	client *storage.Client
	bucket string
}

// NewGCSLister builds a storage client for cfg.
func NewGCSLister(ctx context.Context, cfg GCSConfig) (*GCSLister, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}
	var opts []option.ClientOption
	switch {
	case cfg.EmulatorHost != "":
		opts = append(opts, option.WithEndpoint(emulatorEndpoint(cfg.EmulatorHost)), option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(storage.ScopeReadOnly))
	default:
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSLister{client: client, bucket: cfg.Bucket}, nil
}

// emulatorEndpoint turns an emulator host such as "localhost:4443" into the
// JSON API endpoint the client is pointed at.
func emulatorEndpoint(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host + "/storage/v1/"
}

// List returns every object under prefix with its update time.
func (g *GCSLister) List(ctx context.Context, prefix string) ([]model.SourceObject, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []model.SourceObject
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, model.SourceObject{
			Key:          attrs.Name,
			URI:          g.URI(model.ObjectRef{Bucket: g.bucket, Key: attrs.Name}),
			LastModified: attrs.Updated.UTC(),
			Size:         attrs.Size,
		})
	}
	return out, nil
}

// URI is the gs:// address of an object; an empty bucket means this one.
func (g *GCSLister) URI(ref model.ObjectRef) string {
	bucket := ref.Bucket
	if bucket == "" {
		bucket = g.bucket
	}
	return "gs://" + bucket + "/" + strings.TrimPrefix(ref.Key, "/")
}

func (g *GCSLister) Close() error {
	return g.client.Close()
}
