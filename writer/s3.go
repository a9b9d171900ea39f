package writer

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	appconfig "ofiflow/config"
	"ofiflow/logger"
)

// Mirror uploads finished output files to an S3 bucket. It is optional;
// local parquet and CSV files remain the source of truth and uploads are
// throttled so a large backfill does not flood the API.
type Mirror struct {
	client  *s3.Client
	bucket  string
	prefix  string
	limiter *rate.Limiter
	log     *logger.Log
}

// NewMirror builds an S3 client from the storage configuration. Static
// credentials take precedence when both keys are present; otherwise the
// default AWS credential chain applies.
func NewMirror(ctx context.Context, cfg appconfig.S3Config) (*Mirror, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploadsPerSec := cfg.MaxUploadsPerSec
	if uploadsPerSec <= 0 {
		uploadsPerSec = 4
	}

	m := &Mirror{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		limiter: rate.NewLimiter(rate.Limit(uploadsPerSec), uploadsPerSec),
		log:     log,
	}

	log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"region": cfg.Region,
		"bucket": cfg.Bucket,
		"prefix": m.prefix,
	}).Debug("s3 mirror initialized")

	return m, nil
}

// Upload copies one local file to the bucket under the mirror prefix. The
// key preserves the path of the file relative to the given root so the
// bucket layout matches the local output layout.
func (m *Mirror) Upload(ctx context.Context, root, localPath string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("upload throttle: %w", err)
	}

	rel := strings.TrimPrefix(localPath, strings.TrimSuffix(root, "/")+"/")
	key := path.Join(m.prefix, rel)

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s for upload: %w", localPath, err)
	}
	defer f.Close()

	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}

	logger.AddS3Upload()
	m.log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"key":  key,
		"file": localPath,
	}).Debug("uploaded output file")
	return nil
}
