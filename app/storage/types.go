package storage

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/klsr/podcast-comb/app/feed"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot is the last successfully parsed episode list. Timestamp is in
// epoch milliseconds.
type Snapshot struct {
	Episodes  []feed.Episode `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

func NewSnapshot(episodes []feed.Episode, fetchedAt time.Time) Snapshot {
	return Snapshot{Episodes: episodes, Timestamp: fetchedAt.UnixMilli()}
}

func (s Snapshot) FetchedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt())
}

// Store persists snapshots by key. Load returns nil, nil when nothing is
// stored. Save replaces any previous snapshot in a single write.
type Store interface {
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snapshot Snapshot) error
	Close() error
}

func encodeSnapshot(snapshot Snapshot) ([]byte, error) {
	return json.Marshal(snapshot)
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
