package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/leasekeeper/internal/server/config"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// Archiver keeps a copy of every written sync snapshot.
type Archiver interface {
	Archive(ctx context.Context, version int64, cipherText string) error
}

// S3Archiver uploads snapshots to an S3-compatible bucket (MinIO in
// development) under sync/<version>.txt.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

// NewS3Archiver builds the client from static credentials and a custom
// endpoint with path-style addressing.
func NewS3Archiver(ctx context.Context, cfg *sc.Config) (*S3Archiver, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Archiver{client: client, bucket: cfg.S3Bucket}, nil
}

func ArchiveKey(version int64) string {
	return fmt.Sprintf("sync/%d.txt", version)
}

func (a *S3Archiver) Archive(ctx context.Context, version int64, cipherText string) error {
	_, err := putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ArchiveKey(version)),
		Body:        strings.NewReader(cipherText),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", ArchiveKey(version), err)
	}
	return nil
}
