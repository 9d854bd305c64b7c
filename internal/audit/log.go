// Package audit keeps the per-user append-only history of fund requests and
// their settlement outcomes. The router appends request records, the vault
// appends processed records through the sink interface.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/fundvault/internal/fund"
)

// RequestRecord is written when a request enters a pipeline.
type RequestRecord struct {
	ID        uuid.UUID
	Vault     fund.Address
	Type      fund.RequestType
	Sender    fund.Address
	Receiver  fund.Address
	Timestamp time.Time
	Amount    decimal.Decimal
}

// ProcessedRecord is written when a batch entry settles for a user.
type ProcessedRecord struct {
	ID        uuid.UUID
	Vault     fund.Address
	Type      fund.RequestType
	Receiver  fund.Address
	Timestamp time.Time
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	FeesPaid  decimal.Decimal
}

// ProcessedSink receives settlement outcomes from the vault.
type ProcessedSink interface {
	AppendProcessed(rec ProcessedRecord)
}

// Log stores both record kinds per user.
type Log struct {
	mu        sync.RWMutex
	requests  map[fund.Address][]RequestRecord
	processed map[fund.Address][]ProcessedRecord
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		requests:  make(map[fund.Address][]RequestRecord),
		processed: make(map[fund.Address][]ProcessedRecord),
	}
}

// AppendRequest records rec for the sender and, when different, the receiver.
// A fresh id and timestamp are assigned when unset.
func (l *Log) AppendRequest(rec RequestRecord) RequestRecord {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests[rec.Sender] = append(l.requests[rec.Sender], rec)
	if rec.Receiver != rec.Sender {
		l.requests[rec.Receiver] = append(l.requests[rec.Receiver], rec)
	}
	return rec
}

// AppendProcessed records rec for its receiver.
func (l *Log) AppendProcessed(rec ProcessedRecord) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed[rec.Receiver] = append(l.processed[rec.Receiver], rec)
}

// NumberOf returns how many request and processed records user has.
func (l *Log) NumberOf(user fund.Address) (requests, processed int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.requests[user]), len(l.processed[user])
}

// Requests pages through user's request records in append order. A zero count
// yields an empty slice; otherwise the range must lie fully inside the log.
func (l *Log) Requests(user fund.Address, start, count int) ([]RequestRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := l.requests[user]
	if err := checkRange(start, count, len(recs)); err != nil {
		return nil, err
	}
	if count == 0 {
		return []RequestRecord{}, nil
	}
	out := make([]RequestRecord, count)
	copy(out, recs[start:start+count])
	return out, nil
}

// Processed pages through user's processed records in append order.
func (l *Log) Processed(user fund.Address, start, count int) ([]ProcessedRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := l.processed[user]
	if err := checkRange(start, count, len(recs)); err != nil {
		return nil, err
	}
	if count == 0 {
		return []ProcessedRecord{}, nil
	}
	out := make([]ProcessedRecord, count)
	copy(out, recs[start:start+count])
	return out, nil
}

func checkRange(start, count, total int) error {
	if start < 0 || count < 0 {
		return fund.ErrOutOfRange
	}
	if count == 0 {
		return nil
	}
	if start >= total || start+count > total {
		return fund.ErrOutOfRange
	}
	return nil
}
