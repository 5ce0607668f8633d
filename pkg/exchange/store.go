package exchange

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the persistent indexed storage collaborator: a durable
// ordered-key-value store with point lookup and prefix iteration. The
// engine loads the full working set at construction and writes every
// action's effects through one Batch, committed atomically at action
// end.
type Store interface {
	LoadState() (*GlobalState, error) // nil when the store is fresh
	LoadAccounts() ([]*Account, error)
	LoadBlacklist() (map[common.Address]int64, error)
	LoadOpenOrders() ([]*Order, error)
	LoadBucket(key BucketKey) (*Bucket, error) // nil when absent

	Batch() Batch
}

// Batch stages one action's writes. Nothing is visible in the store
// until Commit; a batch that is never committed is simply dropped.
type Batch interface {
	PutState(*GlobalState)
	PutAccount(*Account)
	DeleteAccount(common.Address)
	PutOrder(*Order)
	DeleteOrder(id uint64)
	PutHistory(*HistoryRecord)
	PutBucket(*Bucket)
	PutBlacklist(owner common.Address, at int64)
	DeleteBlacklist(owner common.Address)
	Commit() error
}

// MemStore is the in-memory Store used by tests and by replay tooling.
// It applies batches atomically under the same contract as the pebble
// store: batches snapshot their arguments at Put time, loads hand out
// copies, so engine-side mutation is never visible before Commit.
type MemStore struct {
	State     *GlobalState
	Accounts  map[common.Address]*Account
	Blacklist map[common.Address]int64
	Orders    map[uint64]*Order
	History   map[uint64]*HistoryRecord
	Buckets   map[BucketKey]*Bucket
}

func NewMemStore() *MemStore {
	return &MemStore{
		Accounts:  make(map[common.Address]*Account),
		Blacklist: make(map[common.Address]int64),
		Orders:    make(map[uint64]*Order),
		History:   make(map[uint64]*HistoryRecord),
		Buckets:   make(map[BucketKey]*Bucket),
	}
}

func (s *MemStore) LoadState() (*GlobalState, error) {
	if s.State == nil {
		return nil, nil
	}
	return s.State.clone(), nil
}

func (s *MemStore) LoadAccounts() ([]*Account, error) {
	out := make([]*Account, 0, len(s.Accounts))
	for _, a := range s.Accounts {
		out = append(out, a.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner.Cmp(out[j].Owner) < 0 })
	return out, nil
}

func (s *MemStore) LoadBlacklist() (map[common.Address]int64, error) {
	out := make(map[common.Address]int64, len(s.Blacklist))
	for k, v := range s.Blacklist {
		out[k] = v
	}
	return out, nil
}

func (s *MemStore) LoadOpenOrders() ([]*Order, error) {
	out := make([]*Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) LoadBucket(key BucketKey) (*Bucket, error) {
	bk, ok := s.Buckets[key]
	if !ok {
		return nil, nil
	}
	c := *bk
	return &c, nil
}

type memOp func(*MemStore)

type memBatch struct {
	store *MemStore
	ops   []memOp
}

func (s *MemStore) Batch() Batch { return &memBatch{store: s} }

// Put snapshots at call time, like the pebble batch marshals at set
// time. Later engine-side mutation of the same object must not bleed
// into the staged write.

func (b *memBatch) PutState(g *GlobalState) {
	c := g.clone()
	b.ops = append(b.ops, func(s *MemStore) { s.State = c })
}

func (b *memBatch) PutAccount(a *Account) {
	c := a.clone()
	b.ops = append(b.ops, func(s *MemStore) { s.Accounts[c.Owner] = c })
}

func (b *memBatch) DeleteAccount(owner common.Address) {
	b.ops = append(b.ops, func(s *MemStore) { delete(s.Accounts, owner) })
}

func (b *memBatch) PutOrder(o *Order) {
	c := *o
	b.ops = append(b.ops, func(s *MemStore) { s.Orders[c.ID] = &c })
}

func (b *memBatch) DeleteOrder(id uint64) {
	b.ops = append(b.ops, func(s *MemStore) { delete(s.Orders, id) })
}

func (b *memBatch) PutHistory(h *HistoryRecord) {
	c := *h
	b.ops = append(b.ops, func(s *MemStore) { s.History[c.OrderID] = &c })
}

func (b *memBatch) PutBucket(bk *Bucket) {
	c := *bk
	b.ops = append(b.ops, func(s *MemStore) { s.Buckets[c.Key] = &c })
}

func (b *memBatch) PutBlacklist(owner common.Address, at int64) {
	b.ops = append(b.ops, func(s *MemStore) { s.Blacklist[owner] = at })
}

func (b *memBatch) DeleteBlacklist(owner common.Address) {
	b.ops = append(b.ops, func(s *MemStore) { delete(s.Blacklist, owner) })
}

func (b *memBatch) Commit() error {
	for _, op := range b.ops {
		op(b.store)
	}
	b.ops = nil
	return nil
}
