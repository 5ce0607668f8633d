package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/exchange"
)

// PebbleStore is the durable ordered-KV store behind the engine. Every
// engine action writes through one pebble batch, committed with Sync,
// so a crash either keeps the whole action or none of it.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) LoadState() (*exchange.GlobalState, error) {
	var gs exchange.GlobalState
	ok, err := s.getJSON([]byte(keyState), &gs)
	if err != nil || !ok {
		return nil, err
	}
	return &gs, nil
}

func (s *PebbleStore) LoadAccounts() ([]*exchange.Account, error) {
	var out []*exchange.Account
	err := s.scan([]byte(prefixAccount), func(val []byte) error {
		var a exchange.Account
		if err := json.Unmarshal(val, &a); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}
		if a.Balances == nil {
			a.Balances = make(map[string]exchange.TokenBalance)
		}
		if a.PairKeys == nil {
			a.PairKeys = make(map[string]uint64)
		}
		out = append(out, &a)
		return nil
	})
	return out, err
}

func (s *PebbleStore) LoadBlacklist() (map[common.Address]int64, error) {
	out := make(map[common.Address]int64)
	prefix := []byte(prefixBlacklist)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		addr := common.HexToAddress(string(iter.Key()[len(prefix):]))
		out[addr] = int64(binary.BigEndian.Uint64(iter.Value()))
	}
	return out, iter.Error()
}

func (s *PebbleStore) LoadOpenOrders() ([]*exchange.Order, error) {
	var out []*exchange.Order
	err := s.scan([]byte(prefixOrder), func(val []byte) error {
		var o exchange.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return fmt.Errorf("decode order: %w", err)
		}
		out = append(out, &o)
		return nil
	})
	return out, err
}

func (s *PebbleStore) LoadBucket(key exchange.BucketKey) (*exchange.Bucket, error) {
	var b exchange.Bucket
	ok, err := s.getJSON(bucketKey(key), &b)
	if err != nil || !ok {
		return nil, err
	}
	return &b, nil
}

// Candles returns the buckets for one pair and granularity whose open
// time falls in [from, to], in time order.
func (s *PebbleStore) Candles(pairKey uint64, gran, from, to int64) ([]*exchange.Bucket, error) {
	lower, upper := bucketRangeKeys(pairKey, gran, from, to)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*exchange.Bucket
	for iter.First(); iter.Valid(); iter.Next() {
		var b exchange.Bucket
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			return nil, fmt.Errorf("decode bucket: %w", err)
		}
		out = append(out, &b)
	}
	return out, iter.Error()
}

// History returns closed-order records, newest id first, optionally
// filtered by owner.
func (s *PebbleStore) History(owner *common.Address, limit int) ([]*exchange.HistoryRecord, error) {
	prefix := []byte(prefixHistory)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*exchange.HistoryRecord
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var h exchange.HistoryRecord
		if err := json.Unmarshal(iter.Value(), &h); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		if owner != nil && h.Owner != *owner {
			continue
		}
		out = append(out, &h)
	}
	return out, iter.Error()
}

func (s *PebbleStore) Batch() exchange.Batch {
	return &pebbleBatch{b: s.db.NewBatch()}
}

func (s *PebbleStore) getJSON(key []byte, v any) (bool, error) {
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(val, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) scan(prefix []byte, fn func(val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// pebbleBatch stages one action's writes. Set/Delete on a pebble batch
// only fail on closed or corrupted batches, which cannot be handled
// mid-action; encode errors likewise mean a bug, so both panic.
type pebbleBatch struct {
	b *pebble.Batch
}

func (pb *pebbleBatch) set(key []byte, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("storage: encode %T: %w", v, err))
	}
	if err := pb.b.Set(key, data, nil); err != nil {
		panic(err)
	}
}

func (pb *pebbleBatch) del(key []byte) {
	if err := pb.b.Delete(key, nil); err != nil {
		panic(err)
	}
}

func (pb *pebbleBatch) PutState(g *exchange.GlobalState) { pb.set([]byte(keyState), g) }
func (pb *pebbleBatch) PutAccount(a *exchange.Account)   { pb.set(accountKey(a.Owner), a) }
func (pb *pebbleBatch) DeleteAccount(addr common.Address) {
	pb.del(accountKey(addr))
}
func (pb *pebbleBatch) PutOrder(o *exchange.Order) { pb.set(orderKey(o.ID), o) }
func (pb *pebbleBatch) DeleteOrder(id uint64)      { pb.del(orderKey(id)) }
func (pb *pebbleBatch) PutHistory(h *exchange.HistoryRecord) {
	pb.set(historyKey(h.OrderID), h)
}
func (pb *pebbleBatch) PutBucket(bk *exchange.Bucket) { pb.set(bucketKey(bk.Key), bk) }

func (pb *pebbleBatch) PutBlacklist(addr common.Address, at int64) {
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], uint64(at))
	if err := pb.b.Set(blacklistKey(addr), val[:], nil); err != nil {
		panic(err)
	}
}

func (pb *pebbleBatch) DeleteBlacklist(addr common.Address) {
	pb.del(blacklistKey(addr))
}

func (pb *pebbleBatch) Commit() error {
	return pb.b.Commit(pebble.Sync)
}

var _ exchange.Store = (*PebbleStore)(nil)
