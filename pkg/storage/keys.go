package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/exchange"
)

// Key schema. Numeric components are fixed-width so lexicographic key
// order matches numeric order and prefix scans walk records in key
// order:
//
//   gs                                  → GlobalState
//   acc:<address>                       → Account
//   bl:<address>                        → blacklist entry
//   ord:<id, 20 digits>                 → open Order
//   hist:<id, 20 digits>                → HistoryRecord
//   bkt:<pair,16hex>:<gran,8hex>:<open,16hex> → Bucket

const (
	keyState        = "gs"
	prefixAccount   = "acc:"
	prefixBlacklist = "bl:"
	prefixOrder     = "ord:"
	prefixHistory   = "hist:"
	prefixBucket    = "bkt:"
)

func accountKey(addr common.Address) []byte {
	return []byte(prefixAccount + addr.Hex())
}

func blacklistKey(addr common.Address) []byte {
	return []byte(prefixBlacklist + addr.Hex())
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func historyKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixHistory, id))
}

func bucketKey(k exchange.BucketKey) []byte {
	return []byte(fmt.Sprintf("%s%016x:%08x:%016x", prefixBucket, k.PairKey, uint64(k.Granularity), uint64(k.Open)))
}

// bucketRangeKeys bound a scan over one pair+granularity between two
// open times, inclusive of from and to.
func bucketRangeKeys(pairKey uint64, gran, from, to int64) (lower, upper []byte) {
	lower = []byte(fmt.Sprintf("%s%016x:%08x:%016x", prefixBucket, pairKey, uint64(gran), uint64(from)))
	upper = []byte(fmt.Sprintf("%s%016x:%08x:%016x", prefixBucket, pairKey, uint64(gran), uint64(to)+1))
	return lower, upper
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
