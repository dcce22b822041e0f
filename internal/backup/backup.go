// Package backup uploads database snapshots to S3.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Uploader pushes local files to an S3 bucket.
type Uploader struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
	log      zerolog.Logger
	now      func() time.Time
}

// NewUploader creates an uploader. With accessKey set it uses those static
// credentials, so the backup can run under a dedicated write-only IAM user;
// otherwise it falls back to the default AWS credential chain.
func NewUploader(ctx context.Context, bucket, prefix, region, accessKey, secretKey string, log zerolog.Logger) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Uploader{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
		log:      log.With().Str("component", "backup").Logger(),
		now:      time.Now,
	}, nil
}

// BackupFiles uploads each file under a dated key. Files that cannot be
// read are skipped with a warning; the first upload error aborts.
func (u *Uploader) BackupFiles(ctx context.Context, paths ...string) error {
	date := u.now().UTC().Format("2006-01-02")

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			u.log.Warn().Err(err).Str("path", path).Msg("Backup source missing, skipped")
			continue
		}

		key := fmt.Sprintf("%s/%s/%s", u.prefix, date, filepath.Base(path))
		_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: &u.bucket,
			Key:    &key,
			Body:   f,
		})
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", path, err)
		}

		u.log.Info().Str("key", key).Msg("Backup uploaded")
	}
	return nil
}
