package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"loadalert-sim/internal/telemetry"
)

const (
	redisTimeout  = 2 * time.Second
	redisStateTTL = 5 * time.Minute
	// Redis geo indexes reject latitudes beyond the Web Mercator limit.
	redisMaxGeoLat = 85.05112878
)

// redisClient is the subset of *redis.Client the writer uses.
type redisClient interface {
	Pipeline() redis.Pipeliner
	Close() error
}

// RedisWriter publishes the live truck state: a state hash, a geo index entry and
// pub/sub messages for every reading, plus a separate channel for overloads.
type RedisWriter struct {
	client redisClient
	prefix string
}

// NewRedisWriter connects to addr and verifies the connection.
func NewRedisWriter(ctx context.Context, addr, password string, db int, prefix string) (*RedisWriter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if prefix == "" {
		prefix = "loadalert"
	}
	return &RedisWriter{client: client, prefix: prefix}, nil
}

func (w *RedisWriter) stateKey(truckID string) string {
	return fmt.Sprintf("%s:truck:%s:state", w.prefix, truckID)
}

func (w *RedisWriter) geoKey() string {
	return w.prefix + ":geo"
}

func (w *RedisWriter) telemetryChannel(truckID string) string {
	return fmt.Sprintf("%s:truck:%s:telemetry", w.prefix, truckID)
}

func (w *RedisWriter) alertChannel() string {
	return w.prefix + ":alerts"
}

func stateFields(r telemetry.Reading) map[string]any {
	return map[string]any{
		"session_id": r.SessionID,
		"truck_id":   r.TruckID,
		"weight":     r.Weight,
		"lat":        r.Lat,
		"lng":        r.Lon,
		"alert":      r.Alert,
		"timestamp":  r.Timestamp.UnixMilli(),
	}
}

// Write pushes a single reading.
func (w *RedisWriter) Write(r telemetry.Reading) error {
	return w.WriteBatch([]telemetry.Reading{r})
}

// WriteBatch pushes readings through one pipeline.
func (w *RedisWriter) WriteBatch(rs []telemetry.Reading) error {
	if len(rs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	pipe := w.client.Pipeline()
	for _, r := range rs {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal reading: %w", err)
		}
		key := w.stateKey(r.TruckID)
		pipe.HSet(ctx, key, stateFields(r))
		pipe.Expire(ctx, key, redisStateTTL)
		pipe.GeoAdd(ctx, w.geoKey(), &redis.GeoLocation{
			Name:      r.TruckID,
			Longitude: r.Lon,
			Latitude:  math.Max(-redisMaxGeoLat, math.Min(redisMaxGeoLat, r.Lat)),
		})
		pipe.Publish(ctx, w.telemetryChannel(r.TruckID), payload)
		if r.Alert {
			pipe.Publish(ctx, w.alertChannel(), payload)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Close closes the client.
func (w *RedisWriter) Close() error {
	return w.client.Close()
}
