package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Status is a job's position in its lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusExecuting Status = "EXECUTING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ErrJobNotFound indicates no job record exists for the requested handle.
var ErrJobNotFound = errors.New("jobstore: job not found")

// Job is a persisted statement job.
type Job struct {
	Handle    string
	SQLText   string
	Status    Status
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Config for the Redis-backed job store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all job keys. ENV: JOBS_KEY_PREFIX
	KeyPrefix string `env:"JOBS_KEY_PREFIX,default=worker:jobs:"`
}

// Store persists job records as Redis hashes keyed by handle.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New connects to Redis and verifies it with a ping.
func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "worker:jobs:"
	}
	return &Store{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) jobKey(handle string) string { return s.keyPrefix + handle }

// Create persists a new job record with status PENDING.
func (s *Store) Create(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	job.Status = StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	return s.client.HSet(ctx, s.jobKey(job.Handle), map[string]any{
		"sql_text":   job.SQLText,
		"status":     string(job.Status),
		"error":      "",
		"created_at": now.Format(time.RFC3339Nano),
		"updated_at": now.Format(time.RFC3339Nano),
	}).Err()
}

// Get loads the job record for handle.
func (s *Store) Get(ctx context.Context, handle string) (*Job, error) {
	m, err := s.client.HGetAll(ctx, s.jobKey(handle)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", handle, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}
	job := &Job{
		Handle:  handle,
		SQLText: m["sql_text"],
		Status:  Status(m["status"]),
		Error:   m["error"],
	}
	if t, err := time.Parse(time.RFC3339Nano, m["created_at"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, m["updated_at"]); err == nil {
		job.UpdatedAt = t
	}
	return job, nil
}

// SetStatus transitions the job, recording the error message for failures.
func (s *Store) SetStatus(ctx context.Context, handle string, status Status, errMsg string) error {
	return s.client.HSet(ctx, s.jobKey(handle), map[string]any{
		"status":     string(status),
		"error":      errMsg,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}).Err()
}
