package event

import (
	"encoding/json"
	"time"
)

// RawEvent is one on-chain event as delivered by the upstream producer.
// Data is the undecoded JSON payload of the event.
type RawEvent struct {
	TransactionVersion     int64           `json:"transaction_version"`
	TransactionBlockHeight int64           `json:"transaction_block_height"`
	TransactionEpoch       int64           `json:"transaction_epoch"`
	EventIndex             int64           `json:"event_index"`
	SequenceNumber         int64           `json:"sequence_number"`
	CreationNumber         int64           `json:"creation_number"`
	AccountAddress         string          `json:"account_address"`
	Type                   string          `json:"type"`
	Data                   json.RawMessage `json:"data"`
	TransactionTimestamp   time.Time       `json:"transaction_timestamp"` // naive chain time
	TransactionSuccess     bool            `json:"transaction_success"`
	EntryFunctionID        string          `json:"entry_function_id_str,omitempty"`
}

// RawBatch is an ordered slice of raw events covering [StartVersion, EndVersion].
// Events of one transaction keep their index ordering; batches themselves may
// be redelivered or arrive out of global order.
type RawBatch struct {
	ID           string     `json:"id"`
	StartVersion int64      `json:"start_version"`
	EndVersion   int64      `json:"end_version"`
	Events       []RawEvent `json:"events"`
	// Rollback is set by the source when it detected a gap or chain rollback
	// for this range; the batch must be abandoned without any write.
	Rollback bool `json:"rollback,omitempty"`
	// AckToken is opaque to the pipeline and handed back to the source once
	// the batch has been committed or abandoned.
	AckToken string `json:"-"`
}
