// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"google.golang.org/api/option"

	"github.com/AleutianAI/callscope/pkg/logging"
)

// ErrUnknownScheme is returned for destinations other than a local
// directory, gs:// or s3://.
var ErrUnknownScheme = errors.New("unknown export destination scheme")

// Sink stores one artifact.
type Sink interface {
	// Scheme names the sink kind: "file", "gs" or "s3".
	Scheme() string

	// Put stores data under name and returns where it went.
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// =============================================================================
// Local Files
// =============================================================================

// FileSink writes artifacts into a local directory.
type FileSink struct {
	Dir string
}

// Scheme returns "file".
func (s *FileSink) Scheme() string { return "file" }

// Put writes data to Dir/name via a temp file and rename, so a reader
// never sees a partial artifact.
func (s *FileSink) Put(_ context.Context, name string, data []byte) (string, error) {
	dir := logging.ExpandPath(s.Dir)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create export dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}

	dest := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("rename to %s: %w", dest, err)
	}
	return dest, nil
}

// =============================================================================
// Google Cloud Storage
// =============================================================================

// GCSSink uploads artifacts to a Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	Bucket string
	Prefix string
}

// NewGCSSink creates a Cloud Storage sink.
//
// # Inputs
//
//   - ctx: Context for client creation.
//   - bucket: Target bucket.
//   - prefix: Object name prefix, may be empty.
//   - credentialsFile: Service account key. Empty uses application
//     default credentials.
func NewGCSSink(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSSink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		keyPath := logging.ExpandPath(credentialsFile)
		if _, err := os.Stat(keyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", keyPath)
		}
		opts = append(opts, option.WithCredentialsFile(keyPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSSink{client: client, Bucket: bucket, Prefix: prefix}, nil
}

// Scheme returns "gs".
func (s *GCSSink) Scheme() string { return "gs" }

// Put uploads data as bucket/prefix/name.
func (s *GCSSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	object := path.Join(s.Prefix, name)
	writer := s.client.Bucket(s.Bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write GCS object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.Bucket, object), nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}

// =============================================================================
// S3 Compatible Storage
// =============================================================================

// S3Config holds the S3 connection settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// S3Sink uploads artifacts to an S3 compatible bucket.
type S3Sink struct {
	client *minio.Client
	Bucket string
	Prefix string
	region string

	mu    sync.Mutex
	ready bool
}

// NewS3Sink creates an S3 sink. The bucket is created on first use if
// it does not exist.
func NewS3Sink(cfg S3Config, bucket, prefix string) (*S3Sink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Sink{client: client, Bucket: bucket, Prefix: prefix, region: region}, nil
}

// Scheme returns "s3".
func (s *S3Sink) Scheme() string { return "s3" }

// ensureBucket creates the bucket if it is missing. A failed check is
// retried on the next call.
func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// Put uploads data as bucket/prefix/name.
func (s *S3Sink) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}
	key := path.Join(s.Prefix, name)
	_, err := s.client.PutObject(ctx, s.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.Bucket, key), nil
}

// =============================================================================
// Destinations
// =============================================================================

// Credentials configures the remote sinks.
type Credentials struct {
	GCSCredentialsFile string   `yaml:"gcs_credentials_file"`
	S3                 S3Config `yaml:"s3"`
}

// ParseDestination builds the sink for dest.
//
// # Inputs
//
//   - dest: A local directory (empty means the working directory),
//     "gs://bucket/prefix" or "s3://bucket/prefix".
//   - creds: Remote credentials.
//
// # Example
//
//	sink, err := export.ParseDestination(ctx, "s3://artifacts/callscope", creds)
func ParseDestination(ctx context.Context, dest string, creds Credentials) (Sink, error) {
	dest = strings.TrimSpace(dest)
	if !strings.Contains(dest, "://") {
		return &FileSink{Dir: dest}, nil
	}

	u, err := url.Parse(dest)
	if err != nil {
		return nil, fmt.Errorf("parse export destination %q: %w", dest, err)
	}
	prefix := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "file":
		return &FileSink{Dir: u.Path}, nil
	case "gs":
		if u.Host == "" {
			return nil, fmt.Errorf("gs destination %q has no bucket", dest)
		}
		return NewGCSSink(ctx, u.Host, prefix, creds.GCSCredentialsFile)
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("s3 destination %q has no bucket", dest)
		}
		return NewS3Sink(creds.S3, u.Host, prefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
	}
}
