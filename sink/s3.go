package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"

	"github.com/banzaicloud/ess-billing-exporter/config"
	"github.com/banzaicloud/ess-billing-exporter/enrich"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 archives every batch as one NDJSON object under <prefix>/yyyy/mm/dd/.
type S3 struct {
	client putObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3 loads AWS credentials from the default chain.
func NewS3(ctx context.Context, cfg config.S3) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

func newS3(client putObjectAPI, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

func (s *S3) Write(ctx context.Context, docs []enrich.Document) error {
	if len(docs) == 0 {
		return nil
	}
	body, err := encodeNDJSON(docs)
	if err != nil {
		return err
	}

	key := path.Join(s.prefix, s.now().UTC().Format("2006/01/02"), ksuid.New().String()+".ndjson")
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return failAll(docs, 0, fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err))
	}
	log.Debugf("archived batch [bucket=%s, key=%s, documents=%d]", s.bucket, key, len(docs))
	return nil
}

func (s *S3) Close() error {
	return nil
}
