package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/GraphResearcher/AutoData/types"
)

// StateBucket is the KV bucket holding one snapshot per run id
const StateBucket = "AUTODATA_STATE"

var (
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrEmptyRunID         = errors.New("empty run id")
)

// KVCheckpointer stores state snapshots in a JetStream key-value bucket
type KVCheckpointer struct {
	kv jetstream.KeyValue
}

// NewKVCheckpointer wraps a bucket, usually from Client.EnsureKV(StateBucketConfig())
func NewKVCheckpointer(kv jetstream.KeyValue) *KVCheckpointer {
	return &KVCheckpointer{kv: kv}
}

// StateBucketConfig keeps a few revisions of every run's state for a week
func StateBucketConfig() jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{
		Bucket:      StateBucket,
		Description: "AutoData workflow state snapshots",
		History:     5,
		TTL:         7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
	}
}

// Save writes the state under its run id
func (c *KVCheckpointer) Save(ctx context.Context, st *types.State) error {
	if st == nil || st.RunID == "" {
		return ErrEmptyRunID
	}
	data, err := st.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal state %s: %w", st.RunID, err)
	}
	if _, err := c.kv.Put(ctx, st.RunID, data); err != nil {
		return fmt.Errorf("failed to checkpoint state %s: %w", st.RunID, err)
	}
	return nil
}

// Load reads the latest snapshot of a run
func (c *KVCheckpointer) Load(ctx context.Context, runID string) (*types.State, error) {
	if runID == "" {
		return nil, ErrEmptyRunID
	}
	entry, err := c.kv.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load state %s: %w", runID, err)
	}
	st := &types.State{}
	if err := st.FromJSON(entry.Value()); err != nil {
		return nil, fmt.Errorf("failed to decode state %s: %w", runID, err)
	}
	return st, nil
}
