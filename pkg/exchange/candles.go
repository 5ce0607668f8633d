package exchange

import (
	"github.com/glsig/dexchange/pkg/asset"
)

// BucketKey addresses one OHLCV record: pair, granularity, and the
// bucket-aligned open timestamp in unix seconds.
type BucketKey struct {
	PairKey     uint64 `json:"pairKey"`
	Granularity int64  `json:"granularity"`
	Open        int64  `json:"open"`
}

// Bucket is one OHLCV candle. Created by the first trade inside its
// window, updated in place by every later trade, never deleted.
type Bucket struct {
	Key         BucketKey    `json:"key"`
	Base        asset.Symbol `json:"base"`
	Quote       asset.Symbol `json:"quote"`
	OpenPrice   float64      `json:"open"`
	High        float64      `json:"high"`
	Low         float64      `json:"low"`
	ClosePrice  float64      `json:"close"`
	BaseVolume  float64      `json:"baseVolume"`
	QuoteVolume float64      `json:"quoteVolume"`
}

func (b *Bucket) update(baseAmt, quoteAmt asset.Asset, price float64) {
	if b.High < price {
		b.High = price
	}
	if b.Low > price {
		b.Low = price
	}
	b.ClosePrice = price
	b.BaseVolume += baseAmt.Float()
	b.QuoteVolume += quoteAmt.Float()
}

// updateBuckets rolls one executed trade into every configured
// granularity. baseAmt/quoteAmt are the traded amounts in the pair's
// base and quote assets; price is the execution (maker) price.
func (x *Exchange) updateBuckets(b Batch, pair Pair, baseAmt, quoteAmt asset.Asset, price float64, tradeTime int64) {
	for _, gran := range x.state.Granularities {
		open := (tradeTime / gran) * gran
		key := BucketKey{PairKey: pair.Key, Granularity: gran, Open: open}

		bucket, ok := x.buckets[key]
		if !ok {
			loaded, err := x.store.LoadBucket(key)
			if err == nil && loaded != nil {
				bucket = loaded
				x.buckets[key] = bucket
				ok = true
			}
		}
		if !ok {
			bucket = &Bucket{
				Key:         key,
				Base:        pair.Base,
				Quote:       pair.Quote,
				OpenPrice:   price,
				High:        price,
				Low:         price,
				ClosePrice:  price,
				BaseVolume:  baseAmt.Float(),
				QuoteVolume: quoteAmt.Float(),
			}
			x.buckets[key] = bucket
		} else {
			bucket.update(baseAmt, quoteAmt, price)
		}
		b.PutBucket(bucket)
	}
}
