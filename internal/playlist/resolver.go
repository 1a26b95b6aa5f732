/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Resolver turns a stored asset location into an input ffmpeg can open.
type Resolver interface {
	Resolve(ctx context.Context, location string) (string, error)
}

// LocalResolver resolves filesystem paths, relative ones against Root.
type LocalResolver struct {
	Root string
}

// Resolve checks that the file exists.
func (r LocalResolver) Resolve(_ context.Context, location string) (string, error) {
	path := strings.TrimPrefix(location, "file://")
	if !filepath.IsAbs(path) && r.Root != "" {
		path = filepath.Join(r.Root, path)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrAssetNotFound, location)
		}
		return "", fmt.Errorf("stat %s: %w", location, err)
	}
	return path, nil
}

// S3Config holds object storage settings for s3:// locations.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	UsePathStyle    bool   // Required for MinIO
	PresignTTL      time.Duration
}

// S3Resolver presigns s3://bucket/key locations so ffmpeg can stream them
// over HTTPS without credentials.
type S3Resolver struct {
	presign *s3.PresignClient
	logger  zerolog.Logger
}

// NewS3Resolver builds a presigning client from cfg. Static credentials are
// used when set; otherwise the default AWS credential chain applies.
func NewS3Resolver(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Resolver, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Resolver{
		presign: s3.NewPresignClient(client, s3.WithPresignExpires(cfg.PresignTTL)),
		logger:  logger.With().Str("component", "s3-resolver").Logger(),
	}, nil
}

// Resolve presigns a GET for the object.
func (r *S3Resolver) Resolve(ctx context.Context, location string) (string, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return "", err
	}
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", location, err)
	}
	r.logger.Debug().Str("bucket", bucket).Str("key", key).Msg("presigned asset")
	return req.URL, nil
}

func parseS3Location(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: missing key", location)
	}
	return u.Host, key, nil
}

// SchemeResolver dispatches on the location's scheme. http and https
// locations pass through unchanged; anything without a known scheme goes to
// Local.
type SchemeResolver struct {
	Local LocalResolver
	S3    Resolver // nil disables s3:// locations
}

// Resolve implements Resolver.
func (r SchemeResolver) Resolve(ctx context.Context, location string) (string, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return location, nil
	case strings.HasPrefix(location, "s3://"):
		if r.S3 == nil {
			return "", fmt.Errorf("%w: object storage not configured for %s", ErrAssetNotFound, location)
		}
		return r.S3.Resolve(ctx, location)
	default:
		return r.Local.Resolve(ctx, location)
	}
}
