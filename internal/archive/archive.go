// Package archive writes job artifacts, such as batch results and processed
// listing photos, to local disk or S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
)

const (
	DestinationLocal = "local"
	DestinationS3    = "s3"
)

// ErrS3NotConfigured is returned when s3 is requested without a bucket.
var ErrS3NotConfigured = errors.New("destination s3 requested but S3_BUCKET is not configured")

// Uploader stores a single object and returns where it landed.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Archive routes uploads to the local or S3 uploader.
type Archive struct {
	local Uploader
	s3    Uploader
}

// New builds an Archive from config. S3 is only set up when a bucket is given.
func New(ctx context.Context, cfg config.Config) (*Archive, error) {
	baseDir := cfg.ArchiveDir
	if baseDir == "" {
		baseDir = "./output"
	}
	a := &Archive{local: &LocalUploader{BaseDir: baseDir}}
	if cfg.S3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.s3 = &S3Uploader{Client: client, Bucket: cfg.S3Bucket}
	}
	return a, nil
}

// NewWithUploaders is used when the uploaders are built elsewhere.
func NewWithUploaders(local, s3 Uploader) *Archive {
	return &Archive{local: local, s3: s3}
}

// DefaultDestination prefers S3 when it is configured.
func (a *Archive) DefaultDestination() string {
	if a.s3 != nil {
		return DestinationS3
	}
	return DestinationLocal
}

// Pick returns the uploader for destination. An empty destination uses the default.
func (a *Archive) Pick(destination string) (Uploader, error) {
	switch strings.ToLower(strings.TrimSpace(destination)) {
	case DestinationS3:
		if a.s3 == nil {
			return nil, ErrS3NotConfigured
		}
		return a.s3, nil
	case DestinationLocal:
		if a.local != nil {
			return a.local, nil
		}
	case "":
		if a.s3 != nil {
			return a.s3, nil
		}
		if a.local != nil {
			return a.local, nil
		}
	default:
		return nil, fmt.Errorf("unknown archive destination %q", destination)
	}
	return nil, errors.New("no uploader configured")
}

// Put uploads body under key at destination.
func (a *Archive) Put(ctx context.Context, destination, key string, body []byte, contentType string) (string, error) {
	up, err := a.Pick(destination)
	if err != nil {
		return "", err
	}
	location, err := up.Upload(ctx, SanitizeKey(key), body, contentType)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return location, nil
}

// PutJSON marshals v with indentation and uploads it.
func (a *Archive) PutJSON(ctx context.Context, destination, key string, v any) (string, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", key, err)
	}
	return a.Put(ctx, destination, key, body, "application/json")
}

// SanitizeKey strips leading separators and parent references so a key
// cannot escape the archive root.
func SanitizeKey(key string) string {
	key = filepath.ToSlash(filepath.Clean("/" + key))
	return strings.TrimPrefix(key, "/")
}

// LocalUploader writes objects beneath BaseDir.
type LocalUploader struct {
	BaseDir string
}

func (l *LocalUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.BaseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// S3Uploader puts objects into Bucket.
type S3Uploader struct {
	Client *s3.Client
	Bucket string
}

func (s *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.Bucket, key), nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	}), nil
}
