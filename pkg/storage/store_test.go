package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/glsig/dexchange/pkg/asset"
	"github.com/glsig/dexchange/pkg/exchange"
)

var (
	abc = asset.NewSymbol("ABC", 4)
	sys = asset.NewSymbol("SYS", 4)

	alice = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000bbb")
)

func openStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestStateRoundTrip(t *testing.T) {
	s := openStore(t)

	// Fresh store has no state.
	gs, err := s.LoadState()
	require.NoError(t, err)
	require.Nil(t, gs)

	want := exchange.NewGlobalState()
	want.TotalOrderID = 42
	want.Tokens["ABC"] = exchange.TokenInfo{Symbol: abc, Contract: alice}
	want.Pairs = append(want.Pairs, exchange.Pair{Base: abc, Quote: sys, Key: exchange.PairKey(abc, sys)})

	b := s.Batch()
	b.PutState(want)
	require.NoError(t, b.Commit())

	got, err := s.LoadState()
	require.NoError(t, err)
	require.Equal(t, want.TotalOrderID, got.TotalOrderID)
	require.Equal(t, want.Tokens, got.Tokens)
	require.Equal(t, want.Pairs, got.Pairs)
	require.Equal(t, want.Granularities, got.Granularities)
}

func TestAccountsRoundTrip(t *testing.T) {
	s := openStore(t)

	a := exchange.NewAccount(alice)
	a.Balances["ABC"] = exchange.TokenBalance{
		Available: asset.New(5000, abc),
		Used:      asset.New(1000, abc),
	}
	b2 := exchange.NewAccount(bob)

	b := s.Batch()
	b.PutAccount(a)
	b.PutAccount(b2)
	require.NoError(t, b.Commit())

	accounts, err := s.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	byOwner := map[common.Address]*exchange.Account{}
	for _, acct := range accounts {
		byOwner[acct.Owner] = acct
	}
	require.Equal(t, a.Balances, byOwner[alice].Balances)
	require.NotNil(t, byOwner[bob].Balances, "maps must be non-nil after decode")
	require.NotNil(t, byOwner[bob].PairKeys)

	// Deletion removes the record.
	b = s.Batch()
	b.DeleteAccount(alice)
	require.NoError(t, b.Commit())
	accounts, err = s.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, bob, accounts[0].Owner)
}

func TestOpenOrdersRoundTrip(t *testing.T) {
	s := openStore(t)

	o1 := &exchange.Order{ID: 1, Owner: alice, Sell: asset.New(100, abc), Buy: asset.New(200, sys), Price: 2,
		Received: asset.New(0, sys), Paid: asset.New(0, abc), Fee: asset.New(0, sys)}
	o2 := &exchange.Order{ID: 2, Owner: bob, Sell: asset.New(200, sys), Buy: asset.New(100, abc), Price: 2,
		Received: asset.New(0, abc), Paid: asset.New(0, sys), Fee: asset.New(0, abc)}

	b := s.Batch()
	b.PutOrder(o1)
	b.PutOrder(o2)
	require.NoError(t, b.Commit())

	orders, err := s.LoadOpenOrders()
	require.NoError(t, err)
	require.Len(t, orders, 2)
	// Fixed-width keys keep id order.
	require.Equal(t, uint64(1), orders[0].ID)
	require.Equal(t, uint64(2), orders[1].ID)

	b = s.Batch()
	b.DeleteOrder(1)
	require.NoError(t, b.Commit())
	orders, err = s.LoadOpenOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, uint64(2), orders[0].ID)
}

func TestBlacklistRoundTrip(t *testing.T) {
	s := openStore(t)

	b := s.Batch()
	b.PutBlacklist(alice, 12345)
	require.NoError(t, b.Commit())

	bl, err := s.LoadBlacklist()
	require.NoError(t, err)
	require.Equal(t, map[common.Address]int64{alice: 12345}, bl)

	b = s.Batch()
	b.DeleteBlacklist(alice)
	require.NoError(t, b.Commit())
	bl, err = s.LoadBlacklist()
	require.NoError(t, err)
	require.Empty(t, bl)
}

func TestCandleRange(t *testing.T) {
	s := openStore(t)
	pairKey := exchange.PairKey(abc, sys)

	b := s.Batch()
	for _, open := range []int64{60, 120, 180, 240} {
		b.PutBucket(&exchange.Bucket{
			Key:        exchange.BucketKey{PairKey: pairKey, Granularity: 60, Open: open},
			Base:       abc,
			Quote:      sys,
			OpenPrice:  2,
			High:       2,
			Low:        2,
			ClosePrice: 2,
		})
	}
	// Different granularity and different pair must not leak in.
	b.PutBucket(&exchange.Bucket{
		Key: exchange.BucketKey{PairKey: pairKey, Granularity: 300, Open: 0},
	})
	b.PutBucket(&exchange.Bucket{
		Key: exchange.BucketKey{PairKey: pairKey + 1, Granularity: 60, Open: 120},
	})
	require.NoError(t, b.Commit())

	got, err := s.Candles(pairKey, 60, 120, 180)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(120), got[0].Key.Open)
	require.Equal(t, int64(180), got[1].Key.Open)

	// Point lookup through the engine-facing interface.
	bucket, err := s.LoadBucket(exchange.BucketKey{PairKey: pairKey, Granularity: 60, Open: 240})
	require.NoError(t, err)
	require.NotNil(t, bucket)
	require.Equal(t, float64(2), bucket.ClosePrice)

	missing, err := s.LoadBucket(exchange.BucketKey{PairKey: pairKey, Granularity: 60, Open: 999960})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestHistoryQuery(t *testing.T) {
	s := openStore(t)

	b := s.Batch()
	for i := uint64(1); i <= 5; i++ {
		owner := alice
		if i%2 == 0 {
			owner = bob
		}
		b.PutHistory(&exchange.HistoryRecord{
			OrderID: i,
			Owner:   owner,
			Status:  exchange.ClosedNormally,
			Sell:    asset.New(int64(i), abc),
			Buy:     asset.New(int64(i)*2, sys),
		})
	}
	require.NoError(t, b.Commit())

	// Newest first, owner filtered.
	got, err := s.History(&alice, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, uint64(5), got[0].OrderID)
	require.Equal(t, uint64(3), got[1].OrderID)
	require.Equal(t, uint64(1), got[2].OrderID)

	// Limit applies.
	got, err = s.History(&bob, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint64(4), got[0].OrderID)
}

func TestBatchIsAtomic(t *testing.T) {
	s := openStore(t)

	// A batch never committed leaves nothing behind.
	b := s.Batch()
	b.PutBlacklist(alice, 1)
	b.PutOrder(&exchange.Order{ID: 7, Owner: alice,
		Sell: asset.New(1, abc), Buy: asset.New(2, sys),
		Received: asset.New(0, sys), Paid: asset.New(0, abc), Fee: asset.New(0, sys)})

	bl, err := s.LoadBlacklist()
	require.NoError(t, err)
	require.Empty(t, bl)
	orders, err := s.LoadOpenOrders()
	require.NoError(t, err)
	require.Empty(t, orders)
}
