// Package jobs is the Redis list the API pushes background work onto and the
// worker drains.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue is the Redis list holding pending jobs.
const Queue = "jobs"

// RecalculateSLA recomputes stored estimate and lead times. An empty
// TicketID means every active ticket.
const RecalculateSLA = "recalculate_sla"

type Job struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type RecalculateData struct {
	TicketID string `json:"ticket_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Enqueue pushes a job and returns its ID.
func Enqueue(ctx context.Context, rdb *redis.Client, typ string, data interface{}) (string, error) {
	if rdb == nil {
		return "", errors.New("jobs: queue not configured")
	}
	j := Job{ID: uuid.New().String(), Type: typ}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return "", err
		}
		j.Data = b
	}
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return j.ID, rdb.RPush(ctx, Queue, b).Err()
}

// Next blocks up to timeout for a job. It returns redis.Nil when none arrived.
func Next(ctx context.Context, rdb *redis.Client, timeout time.Duration) (Job, error) {
	res, err := rdb.BLPop(ctx, timeout, Queue).Result()
	if err != nil {
		return Job{}, err
	}
	var j Job
	if len(res) < 2 {
		return j, redis.Nil
	}
	err = json.Unmarshal([]byte(res[1]), &j)
	return j, err
}
