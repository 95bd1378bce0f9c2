// Package archive copies expired log entries to object storage before the
// retention job deletes them. Archived objects hold ciphertext only.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

const contentType = "application/x-ndjson"

// PutObjectAPI is the part of the S3 client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the archive bucket.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
	// AccessKeyID and SecretAccessKey are optional; when empty the default
	// credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client for cfg. A custom endpoint switches to
// path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, opts...), nil
}

// record is one archived line. Binary fields encode as base64 in JSON.
type record struct {
	ID           uuid.UUID `json:"id"`
	LogID        uuid.UUID `json:"log_id"`
	KEKVersionID uuid.UUID `json:"kek_version_id"`
	Algorithm    string    `json:"algorithm"`
	Ciphertext   []byte    `json:"ciphertext"`
	Nonce        []byte    `json:"nonce"`
	Timestamp    time.Time `json:"timestamp"`
}

// S3Archiver writes each batch of expired entries as one JSON-lines object.
type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver creates an archiver writing under prefix in bucket.
func NewS3Archiver(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Archive uploads entries and returns the s3:// URI of the object written.
func (a *S3Archiver) Archive(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
	entries []*logsDomain.EncryptedLogEntry,
) (string, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, entry := range entries {
		if err := enc.Encode(record{
			ID:           entry.ID,
			LogID:        entry.LogID,
			KEKVersionID: entry.KEKVersionID,
			Algorithm:    string(entry.Algorithm),
			Ciphertext:   entry.Ciphertext,
			Nonce:        entry.Nonce,
			Timestamp:    entry.Timestamp,
		}); err != nil {
			return "", fmt.Errorf("failed to encode archive record: %w", err)
		}
	}

	key := a.objectKey(tenantID, logID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"tenant-id":   tenantID,
			"log-id":      logID.String(),
			"entry-count": fmt.Sprint(len(entries)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to put archive object: %w", err)
	}
	return "s3://" + a.bucket + "/" + key, nil
}

func (a *S3Archiver) objectKey(tenantID string, logID uuid.UUID) string {
	name := a.now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString() + ".jsonl"
	return path.Join(a.prefix, tenantID, logID.String(), name)
}
