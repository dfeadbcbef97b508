package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store persists artifacts under s3://Bucket/Prefix/<runID>/<relPath>,
// reusing the same AWS credential/config chain the Bedrock provider already
// depends on (github.com/aws/aws-sdk-go-v2/config).
type S3Store struct {
	client *s3.Client
	Bucket string
	Prefix string
}

// NewS3Store wraps an already-configured s3.Client. Building that client
// (via config.LoadDefaultConfig) is the caller's responsibility, matching
// how internal/agent/providers/bedrock.go constructs its own AWS clients.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, Bucket: bucket, Prefix: prefix}
}

func (s *S3Store) key(runID, relPath string) string {
	parts := []string{}
	if s.Prefix != "" {
		parts = append(parts, strings.Trim(s.Prefix, "/"))
	}
	parts = append(parts, runID, relPath)
	return strings.Join(parts, "/")
}

func (s *S3Store) Read(ctx context.Context, runID, relPath string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(runID, relPath)),
	})
	if err != nil {
		return nil, fmt.Errorf("reading s3 artifact %s: %w", relPath, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Write(ctx context.Context, runID, relPath string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(runID, relPath)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("writing s3 artifact %s: %w", relPath, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, runID, prefix string) ([]string, error) {
	fullPrefix := s.key(runID, prefix)
	var out []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3 artifacts: %w", err)
		}
		for _, obj := range page.Contents {
			out = append(out, strings.TrimPrefix(aws.ToString(obj.Key), s.key(runID, "")+"/"))
		}
	}
	return out, nil
}
