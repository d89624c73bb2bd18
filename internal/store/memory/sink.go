// Package memory is an in-process store.Sink with the same write guards as
// the postgres sink. It backs STORE_BACKEND=memory and pipeline tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emperorhan/fa-indexer/internal/domain/model"
	"github.com/emperorhan/fa-indexer/internal/store"
)

var _ store.Sink = (*Sink)(nil)

type activityKey struct {
	version int64
	index   int64
}

type Sink struct {
	mu  sync.RWMutex
	now func() time.Time

	faActivities    map[activityKey]model.FungibleAssetActivity
	tokenActivities map[activityKey]model.TokenActivity
	balances        map[string]*model.CurrentBalance
	balanceHistory  map[activityKey]model.BalanceChange
	metadata        map[string]*model.AssetMetadata
	supply          map[model.SupplyKey]model.SupplySnapshot
	checkpoints     map[string]*model.ProcessorStatus

	// failNext, when set, is returned by the next WriteBatch call.
	failNext error
}

type Option func(*Sink)

// WithClock sets the clock that stamps inserted_at and last_updated.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

func New(opts ...Option) *Sink {
	s := &Sink{
		now:             func() time.Time { return time.Now().UTC() },
		faActivities:    make(map[activityKey]model.FungibleAssetActivity),
		tokenActivities: make(map[activityKey]model.TokenActivity),
		balances:        make(map[string]*model.CurrentBalance),
		balanceHistory:  make(map[activityKey]model.BalanceChange),
		metadata:        make(map[string]*model.AssetMetadata),
		supply:          make(map[model.SupplyKey]model.SupplySnapshot),
		checkpoints:     make(map[string]*model.ProcessorStatus),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sink) LoadState(ctx context.Context, keys store.StateKeys) (store.State, error) {
	if err := ctx.Err(); err != nil {
		return store.State{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := store.State{
		Balances: make(map[string]*model.CurrentBalance, len(keys.StorageIDs)),
		Metadata: make(map[string]*model.AssetMetadata, len(keys.AssetTypes)),
	}
	for _, id := range keys.StorageIDs {
		if b, ok := s.balances[id]; ok {
			st.Balances[id] = b.Clone()
		}
	}
	for _, at := range keys.AssetTypes {
		if m, ok := s.metadata[at]; ok {
			st.Metadata[at] = m.Clone()
		}
	}
	return st, nil
}

// WriteBatch validates the whole batch before touching any table, so a
// rejected batch leaves no partial state behind.
func (s *Sink) WriteBatch(ctx context.Context, w store.BatchWrite) (store.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return store.WriteResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return store.WriteResult{}, err
	}
	for _, b := range w.Balances {
		if b != nil && b.Amount.IsNegative() {
			return store.WriteResult{}, fmt.Errorf("bulk upsert balances: storage %s: negative amount %s", b.StorageID, b.Amount)
		}
	}

	now := s.now()
	var res store.WriteResult

	for _, a := range w.FungibleAssetActivities {
		k := activityKey{a.TransactionVersion, a.EventIndex}
		if _, ok := s.faActivities[k]; ok {
			continue
		}
		a.InsertedAt = now
		s.faActivities[k] = a
		res.FungibleAssetActivities++
	}
	for _, a := range w.TokenActivities {
		k := activityKey{a.TransactionVersion, a.EventIndex}
		if _, ok := s.tokenActivities[k]; ok {
			continue
		}
		a.InsertedAt = now
		s.tokenActivities[k] = a
		res.TokenActivities++
	}
	for _, b := range w.Balances {
		if b == nil {
			continue
		}
		if cur, ok := s.balances[b.StorageID]; ok && !b.Position().After(cur.Position()) {
			continue
		}
		row := b.Clone()
		row.InsertedAt = now
		s.balances[b.StorageID] = row
		res.Balances++
	}
	for _, h := range w.BalanceHistory {
		k := activityKey{h.TransactionVersion, h.EventIndex}
		if _, ok := s.balanceHistory[k]; ok {
			continue
		}
		h.InsertedAt = now
		s.balanceHistory[k] = h
		res.BalanceHistory++
	}
	for _, m := range w.Metadata {
		if m == nil {
			continue
		}
		if cur, ok := s.metadata[m.AssetType]; ok && cur.Position().After(m.Position()) {
			continue
		}
		row := m.Clone()
		row.InsertedAt = now
		s.metadata[m.AssetType] = row
		res.Metadata++
	}
	for _, sn := range w.Supply {
		sn.InsertedAt = now
		s.supply[sn.Key()] = sn
		res.Supply++
	}

	if w.Processor != "" {
		cp, ok := s.checkpoints[w.Processor]
		if !ok {
			cp = &model.ProcessorStatus{Processor: w.Processor, LastSuccessVersion: w.EndVersion}
			s.checkpoints[w.Processor] = cp
		}
		if w.EndVersion >= cp.LastSuccessVersion {
			cp.LastSuccessVersion = w.EndVersion
			if w.LastTimestamp != nil {
				ts := w.LastTimestamp.UTC()
				cp.LastTransactionTimestamp = &ts
			}
		}
		cp.LastUpdated = now
	}
	return res, nil
}

func (s *Sink) Checkpoint(ctx context.Context, processor string) (*model.ProcessorStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[processor]
	if !ok {
		return nil, nil
	}
	out := *cp
	return &out, nil
}

// FailNextWrite makes the next WriteBatch return err without writing.
func (s *Sink) FailNextWrite(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Sink) Balance(storageID string) (*model.CurrentBalance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[storageID]
	return b.Clone(), ok
}

func (s *Sink) AssetMetadata(assetType string) (*model.AssetMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metadata[assetType]
	return m.Clone(), ok
}

// FungibleAssetActivities returns every stored row ordered by position.
func (s *Sink) FungibleAssetActivities() []model.FungibleAssetActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.FungibleAssetActivity, 0, len(s.faActivities))
	for _, a := range s.faActivities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return positionLess(out[i].TransactionVersion, out[i].EventIndex, out[j].TransactionVersion, out[j].EventIndex)
	})
	return out
}

// BalanceHistory returns the history rows of storageID ordered by position.
func (s *Sink) BalanceHistory(storageID string) []model.BalanceChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.BalanceChange
	for _, h := range s.balanceHistory {
		if h.StorageID == storageID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return positionLess(out[i].TransactionVersion, out[i].EventIndex, out[j].TransactionVersion, out[j].EventIndex)
	})
	return out
}

func (s *Sink) TokenActivities() []model.TokenActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TokenActivity, 0, len(s.tokenActivities))
	for _, a := range s.tokenActivities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return positionLess(out[i].TransactionVersion, out[i].EventIndex, out[j].TransactionVersion, out[j].EventIndex)
	})
	return out
}

// Supply returns the ledger ordered by version, then coin type hash.
func (s *Sink) Supply() []model.SupplySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SupplySnapshot, 0, len(s.supply))
	for _, sn := range s.supply {
		out = append(out, sn)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionVersion != out[j].TransactionVersion {
			return out[i].TransactionVersion < out[j].TransactionVersion
		}
		return out[i].CoinTypeHash < out[j].CoinTypeHash
	})
	return out
}

func positionLess(v1, i1, v2, i2 int64) bool {
	if v1 != v2 {
		return v1 < v2
	}
	return i1 < i2
}
