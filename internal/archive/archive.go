// Package archive writes pruned queue chunks to S3-compatible object
// storage so the waiting areas stay small without losing history.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chronicler-ai/chronicler/pkg/pipeline"
)

// NewS3ClientParams configures the object storage client. Endpoint is
// optional and points at S3-compatible stores like MinIO.
type NewS3ClientParams struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client creates an S3 client with static credentials.
func NewS3Client(ctx context.Context, params NewS3ClientParams) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(params.Region),
		awsconfig.WithBaseEndpoint(params.Endpoint),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// ChunkArchiver implements the queue store's archive hook over S3.
type ChunkArchiver struct {
	client *s3.Client
	bucket string
}

// NewChunkArchiver creates an archiver writing into the given bucket.
func NewChunkArchiver(client *s3.Client, bucket string) *ChunkArchiver {
	return &ChunkArchiver{client: client, bucket: bucket}
}

// ArchiveChunk stores one completed chunk as JSON under
// chunks/<stage>/<id>.json. Re-archiving the same chunk overwrites the
// identical object, so retries are harmless.
func (a *ChunkArchiver) ArchiveChunk(ctx context.Context, chunk pipeline.Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk %s: %w", chunk.ID, err)
	}

	key := fmt.Sprintf("chunks/%s/%s.json", chunk.Stage, chunk.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload chunk to S3: %w", err)
	}
	return nil
}
