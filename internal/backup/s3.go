// Package backup uploads the sqlite databases to S3 on a schedule.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristomenis/vigil/internal/events"
)

// Uploader pushes database files to an S3 bucket. Uploads are best-effort:
// a failed backup is logged and retried on the next schedule tick, never
// fatal.
type Uploader struct {
	bucket   string
	prefix   string
	paths    []string
	uploader *manager.Uploader
	eventBus *events.Manager
	log      zerolog.Logger
}

// New creates an Uploader for the given database paths.
func New(ctx context.Context, region, bucket, prefix string, paths []string, eventBus *events.Manager, log zerolog.Logger) (*Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &Uploader{
		bucket:   bucket,
		prefix:   prefix,
		paths:    paths,
		uploader: manager.NewUploader(client),
		eventBus: eventBus,
		log:      log.With().Str("component", "backup").Logger(),
	}, nil
}

// Name returns the job name
func (u *Uploader) Name() string { return "s3_backup" }

// Run uploads every configured database file. Files that do not exist yet
// are skipped.
func (u *Uploader) Run(ctx context.Context) error {
	stamp := time.Now().UTC().Format("2006-01-02")
	uploaded := 0

	for _, path := range u.paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := u.uploadFile(ctx, path, stamp); err != nil {
			return fmt.Errorf("backup of %s failed: %w", filepath.Base(path), err)
		}
		uploaded++
	}

	u.eventBus.Emit(events.BackupDone, "backup", map[string]interface{}{
		"files":  uploaded,
		"bucket": u.bucket,
	})
	return nil
}

func (u *Uploader) uploadFile(ctx context.Context, path, stamp string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	key := fmt.Sprintf("%s/%s/%s", u.prefix, stamp, filepath.Base(path))
	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &u.bucket,
		Key:    &key,
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	u.log.Info().Str("key", key).Msg("Database backed up")
	return nil
}
