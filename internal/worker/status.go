package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insightdelivered/statement-converter/internal/models"
)

// State is the lifecycle stage of an upload.
type State string

const (
	StateQueued     State = "QUEUED"
	StateConverting State = "CONVERTING"
	StateConverted  State = "CONVERTED"
	StateFailed     State = "FAILED"
)

// ErrStatusNotFound is returned for an upload with no recorded status.
var ErrStatusNotFound = errors.New("conversion status not found")

// Status is the record kept per upload.
type Status struct {
	UploadID     string           `json:"uploadId"`
	State        State            `json:"state"`
	SourceKey    string           `json:"sourceKey,omitempty"`
	CSVKey       string           `json:"csvKey,omitempty"`
	PreviewKey   string           `json:"previewKey,omitempty"`
	Transactions int              `json:"transactions"`
	PageCount    int              `json:"pageCount"`
	Warnings     []string         `json:"warnings,omitempty"`
	QaReport     *models.QaReport `json:"qaReport,omitempty"`
	Error        string           `json:"error,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// StatusStore persists upload statuses.
type StatusStore interface {
	Set(ctx context.Context, s Status) error
	Get(ctx context.Context, uploadID string) (Status, error)
}

// RedisStatusStore keeps each status as a JSON string that expires after TTL.
type RedisStatusStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStatusStore(client redis.Cmdable, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{client: client, ttl: ttl}
}

func statusKey(uploadID string) string {
	return "conversion:status:" + uploadID
}

func (r *RedisStatusStore) Set(ctx context.Context, s Status) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := r.client.Set(ctx, statusKey(s.UploadID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save status of %s: %w", s.UploadID, err)
	}
	return nil
}

func (r *RedisStatusStore) Get(ctx context.Context, uploadID string) (Status, error) {
	data, err := r.client.Get(ctx, statusKey(uploadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, ErrStatusNotFound
	}
	if err != nil {
		return Status{}, fmt.Errorf("load status of %s: %w", uploadID, err)
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, fmt.Errorf("decode status of %s: %w", uploadID, err)
	}
	return s, nil
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
