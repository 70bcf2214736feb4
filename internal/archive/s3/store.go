// Package s3 replicates archive files to and from an S3 bucket. Objects
// are keyed prefix/filename, so the bucket mirrors the local archive
// directory layout.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/internal/archive"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// Store is an S3-backed archive mirror.
type Store struct {
	client *awss3.Client
	bucket string
	prefix string
	log    *logger.Log
}

// NewStore configures the AWS SDK from the storage configuration and
// validates that credentials resolve.
func NewStore(ctx context.Context, cfg appconfig.S3Config) (*Store, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_store").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_store").WithFields(logger.Fields{
		"bucket": cfg.Bucket,
		"region": cfg.Region,
	}).Debug("s3 store initialized")

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Upload copies a local archive file to the bucket. The file name must be
// a valid archive name; foreign files are rejected.
func (s *Store) Upload(ctx context.Context, localPath string) error {
	if _, err := archive.ParseFilename(filepath.Base(localPath)); err != nil {
		return err
	}
	return s.UploadFile(ctx, localPath)
}

// UploadFile copies any local file to the bucket under its base name.
func (s *Store) UploadFile(ctx context.Context, localPath string) error {
	name := filepath.Base(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	key := s.key(name)
	if _, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	s.log.WithComponent("s3_store").WithFields(logger.Fields{
		"key":    key,
		"bucket": s.bucket,
	}).Info("archive uploaded")
	return nil
}

// Download fetches one archive object into dir and returns the local
// path. Missing objects map to models.ErrNotFound.
func (s *Store) Download(ctx context.Context, id models.ArchiveID, dir string) (string, error) {
	name := archive.Filename(id)
	key := s.key(name)

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return "", fmt.Errorf("%w: %s on %s", models.ErrNotFound, id.Symbol, id.Date)
		}
		return "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	localPath := filepath.Join(dir, name)
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create local archive: %w", err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(localPath)
		return "", fmt.Errorf("download object %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return "", err
	}

	s.log.WithComponent("s3_store").WithFields(logger.Fields{
		"key":  key,
		"path": localPath,
	}).Info("archive downloaded")
	return localPath, nil
}

// List returns the archives stored for a date; an empty date lists all.
func (s *Store) List(ctx context.Context, date string) ([]models.ArchiveID, error) {
	listPrefix := s.key(date)

	var ids []models.ArchiveID
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			id, err := archive.ParseFilename(path.Base(aws.ToString(obj.Key)))
			if err != nil {
				continue // foreign objects are not archives
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
