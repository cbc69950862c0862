package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"joke-pipeline/internal/config"
	"joke-pipeline/internal/models"
	"joke-pipeline/pkg/logger"

	"github.com/nats-io/nats.go"
)

// NATS keeps handoff entries in a JetStream key/value bucket so the stages
// can run in separate processes.
type NATS struct {
	conn *nats.Conn
	kv   nats.KeyValue
}

func NewNATS(cfg config.NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream: %w", err)
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "joke pipeline stage handoff",
			TTL:         cfg.TTL,
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open key/value bucket %s: %w", cfg.Bucket, err)
	}

	return &NATS{conn: conn, kv: kv}, nil
}

func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

func (n *NATS) Push(ctx context.Context, runID, key string, jokes []models.JokeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(jokes)
	if err != nil {
		return err
	}

	if _, err := n.kv.Put(entryKey(runID, key), data); err != nil {
		return fmt.Errorf("failed to push %s: %w", key, err)
	}

	logger.Debug("Handoff pushed",
		logger.String("run_id", runID),
		logger.String("key", key),
		logger.Int("count", len(jokes)),
	)

	return nil
}

func (n *NATS) Pull(ctx context.Context, runID, key string) ([]models.JokeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := n.kv.Get(entryKey(runID, key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return []models.JokeRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", key, err)
	}

	return decode(entry.Value())
}

func (n *NATS) Delete(ctx context.Context, runID, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.kv.Delete(entryKey(runID, key)); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func encode(jokes []models.JokeRecord) ([]byte, error) {
	if jokes == nil {
		jokes = []models.JokeRecord{}
	}
	data, err := json.Marshal(jokes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jokes: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]models.JokeRecord, error) {
	jokes := []models.JokeRecord{}
	if err := json.Unmarshal(data, &jokes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal jokes: %w", err)
	}
	return jokes, nil
}
