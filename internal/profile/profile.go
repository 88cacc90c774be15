// Package profile snapshots a replay session into a persisted record
// and restores it. Storage is SQLite; the snapshot shape is the only
// contract the core exposes to the persistence layer.
package profile

import (
	"encoding/json"
	"fmt"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
)

// Snapshot is the serializable session state.
type Snapshot struct {
	Account      model.AccountState `json:"account"`
	Symbol       string             `json:"symbol"`
	Timeframe    model.Timeframe    `json:"timeframe"`
	SimTime      int64              `json:"simTime"`
	TimeInvested int64              `json:"timeInvestedSec"`
	Drawings     json.RawMessage    `json:"drawings,omitempty"` // opaque UI state
}

// Encode serializes a snapshot to JSON.
func Encode(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// Decode deserializes a snapshot from JSON.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}
