// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blob provides an S3-backed store.BlobStore for spilled node
// I/O payloads (spec §4.2 "Payload spill"), following the same
// config.LoadDefaultConfig bootstrap pattern as
// internal/operation/transport's AWS SigV4 transport.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config configures the S3-backed blob store.
type Config struct {
	// Bucket is the S3 bucket spilled payloads are written under.
	Bucket string

	// Region is the AWS region; empty uses the SDK's default chain.
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible
	// object stores used in self-hosted deployments).
	Endpoint string

	Timeout time.Duration
}

// Store is a store.BlobStore backed by Amazon S3 (or an S3-compatible
// endpoint).
type Store struct {
	client  *s3.Client
	bucket  string
	timeout time.Duration
}

// New loads AWS credentials via the default SDK chain and returns a
// ready-to-use Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob: bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Store{client: client, bucket: cfg.Bucket, timeout: timeout}, nil
}

// Put writes data under ref (an object key relative to the bucket).
func (s *Store) Put(ctx context.Context, ref string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("blob: put %q: %w", ref, err)
	}
	return nil
}

// Get retrieves the object stored under ref.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("blob: get %q: %w", ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blob: reading %q: %w", ref, err)
	}
	return data, nil
}
