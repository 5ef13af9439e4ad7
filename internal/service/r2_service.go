package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// R2Service is the object store: source media uploaded through the
// dashboard is read from it, and media the platforms pull by URL is
// staged in it.
type R2Service struct {
	config cfg.Config

	once   sync.Once
	client *s3.Client
	err    error
}

func NewR2Service(cfg cfg.Config) *R2Service {
	return &R2Service{config: cfg}
}

func (r *R2Service) R2Client(ctx context.Context) (*s3.Client, error) {
	r.once.Do(func() {
		awsCfg, err := config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
			config.WithRegion("auto"),
		)
		if err != nil {
			slog.Info(err.Error())
			r.err = err
			return
		}
		r.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
		})
	})
	return r.client, r.err
}

// UploadToR2 stores body under key. body must be seekable for request signing.
func (r *R2Service) UploadToR2(ctx context.Context, key string, body io.ReadSeeker, size int64, filetype string) error {
	client, err := r.R2Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.config.R2.BucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(filetype),
	})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *R2Service) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	client, err := r.R2Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.config.R2.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return out.Body, nil
}

func (r *R2Service) Delete(ctx context.Context, key string) error {
	client, err := r.R2Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.config.R2.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *R2Service) PublicURL(key string) string {
	return strings.TrimSuffix(r.config.R2.PublicBaseURL, "/") + "/" + key
}

// Stage uploads a local asset under a random key and returns its public URL.
func (r *R2Service) Stage(ctx context.Context, asset *models.MediaAsset) (string, string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", "", err
	}
	key := fmt.Sprintf("staging/%s.%s", id, asset.Extension)

	f, err := asset.Open()
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	if err := r.UploadToR2(ctx, key, f, asset.SizeBytes, asset.MIME); err != nil {
		return "", "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, r.PublicURL(key), nil
}

func (r *R2Service) Remove(ctx context.Context, key string) error {
	return r.Delete(ctx, key)
}
