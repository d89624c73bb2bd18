package model

import "time"

// ProcessorStatus is the committed watermark of one processor. It advances in
// the same database transaction as the batch it describes.
type ProcessorStatus struct {
	Processor                string     `db:"processor"`
	LastSuccessVersion       int64      `db:"last_success_version"`
	LastTransactionTimestamp *time.Time `db:"last_transaction_timestamp"`
	LastUpdated              time.Time  `db:"last_updated"`
}
