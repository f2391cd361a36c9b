package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/bowerhall/graphmem/internal/graph"
	"github.com/bowerhall/graphmem/internal/logger"
)

// Client uploads owner snapshots to object storage before erasure.
type Client struct {
	mc     *minio.Client
	bucket string
}

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "graphmem-archive"
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// Init creates the archive bucket if it doesn't exist.
func (c *Client) Init(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}

	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", c.bucket, err)
		}
		logger.Get().Info("archive bucket created", zap.String("bucket", c.bucket))
	}

	return nil
}

// ExportOwner uploads the full snapshot as one JSON object keyed by owner
// and export time.
func (c *Client) ExportOwner(ctx context.Context, snapshot *graph.OwnerSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s/%s.json", snapshot.OwnerID, snapshot.ExportedAt.Format("2006-01-02T15-04-05Z"))

	_, err = c.mc.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, name, err)
	}

	logger.Get().Info("owner snapshot archived",
		zap.String("owner_id", snapshot.OwnerID), zap.String("object", name), zap.Int("size", len(data)))
	return nil
}

// Healthy checks if the archive endpoint is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return err == nil
}
