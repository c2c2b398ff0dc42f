package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of the S3 client the archiver uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads transcripts as JSON objects to an S3 bucket under
// prefix/<sessionID>.json.
type S3Archiver struct {
	client s3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Archiver creates an S3Archiver writing to the given bucket.
//
// Example:
//
//	client := s3.New(s3.Options{Region: "us-east-1"})
//	archiver := archive.NewS3Archiver(client, "lab-transcripts", "sessions", nil)
func NewS3Archiver(client *s3.Client, bucket, prefix string, logger *slog.Logger) *S3Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With("component", "s3_archiver"),
	}
}

// Archive uploads the transcript. The object key is derived from the
// session ID, so re-archiving the same session overwrites the prior object.
func (a *S3Archiver) Archive(ctx context.Context, t Transcript) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("archive: marshal transcript %s: %w", t.SessionID, err)
	}

	key := t.SessionID + ".json"
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put transcript %s: %w", t.SessionID, err)
	}

	a.logger.Info("transcript archived",
		"session_id", t.SessionID,
		"key", key,
		"messages", len(t.Messages),
		"annotations", len(t.Annotations))
	return nil
}
