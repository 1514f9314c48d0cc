package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gistseek/gistseek/internal/domain/model"
)

// matchKeyPrefix namespaces per-job match lists in Redis.
const matchKeyPrefix = "gistseek:matches:"

// MatchRepo stores the append-only match list per job in a Redis list.
// Each element is one gist's verbatim metadata JSON.
type MatchRepo struct {
	client redis.UniversalClient
	prefix string
}

// NewMatchRepo creates a new MatchRepo with the given Redis client.
func NewMatchRepo(client redis.UniversalClient) *MatchRepo {
	return &MatchRepo{client: client, prefix: matchKeyPrefix}
}

// NewMatchRepoWithPrefix creates a MatchRepo with a custom key prefix.
func NewMatchRepoWithPrefix(client redis.UniversalClient, prefix string) *MatchRepo {
	return &MatchRepo{client: client, prefix: prefix}
}

func (r *MatchRepo) key(jobID string) string {
	return r.prefix + jobID
}

// AppendMatch atomically appends one match to the job's list. RPUSH keeps
// concurrent readers safe: LRANGE never observes a partial element.
func (r *MatchRepo) AppendMatch(ctx context.Context, jobID string, match model.MatchResult) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	if len(match) == 0 {
		return errors.New("match payload is required")
	}

	if err := r.client.RPush(ctx, r.key(jobID), []byte(match)).Err(); err != nil {
		return fmt.Errorf("append match: %w", err)
	}
	return nil
}

// ListMatches returns the full ordered match list observed so far.
// An unknown or not-yet-matched job yields an empty list; existence of
// the job itself is the job repository's concern.
func (r *MatchRepo) ListMatches(ctx context.Context, jobID string) ([]model.MatchResult, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}

	raw, err := r.client.LRange(ctx, r.key(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	matches := make([]model.MatchResult, 0, len(raw))
	for _, item := range raw {
		matches = append(matches, model.MatchResult([]byte(item)))
	}
	return matches, nil
}

// Health checks the Redis connection.
func (r *MatchRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
