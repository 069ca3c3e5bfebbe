package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/byteflow-dev/byteflow/internal/config"
	"github.com/byteflow-dev/byteflow/internal/demo"
	"github.com/byteflow-dev/byteflow/internal/errors"
	"github.com/byteflow-dev/byteflow/pkg/cache"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
	"github.com/byteflow-dev/byteflow/pkg/storage"
)

// openCache connects the Redis cache when configured. It returns a nil
// provider when redis.addr is empty.
func openCache(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*cache.Provider, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	p, err := cache.New(cache.Options{
		Addr:             cfg.Addr,
		Username:         cfg.Username,
		Password:         cfg.Password,
		AllowedDatabases: cfg.Databases,
	}, cache.WithLogger(logger))
	if err != nil {
		return nil, errors.New("BF402").Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.CheckHealth(ctx); err != nil {
		_ = p.Close()
		return nil, errors.New("BF402").
			WithSuggestion(fmt.Sprintf("Check that Redis is reachable at %s, or clear redis.addr.", cfg.Addr)).
			Wrap(err)
	}
	return p, nil
}

// newS3Client builds an S3 client from the storage section. Credentials come
// from the standard AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY variables.
func newS3Client(cfg config.StorageConfig) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
			if id == "" || secret == "" {
				return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
			}
			return aws.Credentials{
				AccessKeyID:     id,
				SecretAccessKey: secret,
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// openStorage returns the entity store when storage.bucket is set.
func openStorage(ctx context.Context, cfg config.StorageConfig, codec *protocol.Codec, logger *slog.Logger) (*storage.Store[demo.Entity], error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	opts := []storage.StoreOption{storage.WithLogger(logger)}
	if cfg.Prefix != "" {
		opts = append(opts, storage.WithPrefix(cfg.Prefix))
	}
	store := storage.NewStore[demo.Entity](newS3Client(cfg), cfg.Bucket, codec, opts...)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.CheckHealth(ctx); err != nil {
		return nil, errors.New("BF403").
			WithSuggestion(fmt.Sprintf("Check that bucket %q exists and the credentials can reach it.", cfg.Bucket)).
			Wrap(err)
	}
	return store, nil
}
