package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PriceLevel is an aggregated quantity at one price.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is a depth snapshot. Bids are sorted by descending price, asks by
// ascending price.
type OrderBook struct {
	Symbol       string
	LastUpdateID int64 // sequence marker of the last applied update
	Bids         []PriceLevel
	Asks         []PriceLevel
	UpdatedAt    int64 // µs since epoch
}

// Clone returns a deep copy that shares nothing with b.
func (b *OrderBook) Clone() *OrderBook {
	if b == nil {
		return nil
	}
	c := *b
	c.Bids = append([]PriceLevel(nil), b.Bids...)
	c.Asks = append([]PriceLevel(nil), b.Asks...)
	return &c
}

// BestBid returns the highest bid.
func (b *OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask.
func (b *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Spread returns best ask minus best bid, false if either side is empty.
func (b *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// MidPrice returns the average of best bid and best ask.
func (b *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Apply merges a depth diff: each level replaces the quantity at its price and
// a zero quantity removes the price.
func (b *OrderBook) Apply(bids, asks []PriceLevel) {
	for _, l := range bids {
		b.Bids = upsert(b.Bids, l, true)
	}
	for _, l := range asks {
		b.Asks = upsert(b.Asks, l, false)
	}
}

// Truncate keeps at most limit levels per side. limit <= 0 keeps everything.
func (b *OrderBook) Truncate(limit int) {
	if limit <= 0 {
		return
	}
	if len(b.Bids) > limit {
		b.Bids = b.Bids[:limit]
	}
	if len(b.Asks) > limit {
		b.Asks = b.Asks[:limit]
	}
}

func upsert(levels []PriceLevel, l PriceLevel, descending bool) []PriceLevel {
	i := sort.Search(len(levels), func(i int) bool {
		if descending {
			return levels[i].Price.LessThanOrEqual(l.Price)
		}
		return levels[i].Price.GreaterThanOrEqual(l.Price)
	})
	found := i < len(levels) && levels[i].Price.Equal(l.Price)

	switch {
	case l.Quantity.IsZero() && found:
		return append(levels[:i], levels[i+1:]...)
	case l.Quantity.IsZero():
		return levels
	case found:
		levels[i].Quantity = l.Quantity
		return levels
	default:
		levels = append(levels, PriceLevel{})
		copy(levels[i+1:], levels[i:])
		levels[i] = l
		return levels
	}
}
