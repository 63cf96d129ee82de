package market

import (
	"bytes"
	"strconv"
	"time"
)

// Num is an optional numeric field as delivered by quote feeds, where
// prices and sizes arrive as JSON numbers, quoted numbers, empty strings
// or are missing entirely. It distinguishes "absent or invalid" from a
// genuine zero; defaulting happens explicitly in ParseTick, never here.
type Num struct {
	Valid bool
	Value float64
}

// UnmarshalJSON accepts a JSON number or a quoted number. Anything else
// (null, empty string, garbage) leaves the field invalid without failing
// the whole message.
func (n *Num) UnmarshalJSON(data []byte) error {
	n.Valid = false
	n.Value = 0

	s := bytes.TrimSpace(data)
	if len(s) == 0 || bytes.Equal(s, []byte("null")) {
		return nil
	}

	// Unquote "123.4" style values
	if s[0] == '"' {
		if len(s) < 2 || s[len(s)-1] != '"' {
			return nil
		}
		s = s[1 : len(s)-1]
		if len(bytes.TrimSpace(s)) == 0 {
			return nil
		}
	}

	v, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return nil
	}

	n.Valid = true
	n.Value = v
	return nil
}

// Float returns the value or the fallback when the field is absent/invalid.
func (n Num) Float(fallback float64) float64 {
	if n.Valid {
		return n.Value
	}
	return fallback
}

// Count returns the field as a non-negative integer count.
// Absent, invalid, or negative values fall back to 0; this is the
// documented default for volume fields.
func (n Num) Count() int64 {
	if !n.Valid || n.Value < 0 {
		return 0
	}
	return int64(n.Value)
}

// RawQuote is one inbound quote message as delivered by the live push
// feed, the polling fallback, or the synthetic generator. Field types are
// deliberately loose; ParseTick is the only way to turn one into a Tick.
type RawQuote struct {
	Symbol  string `json:"symbol"`
	Bid     Num    `json:"bid"`
	Ask     Num    `json:"ask"`
	Last    Num    `json:"last"`
	BidSize Num    `json:"bidsz"`
	AskSize Num    `json:"asksz"`
	Volume  Num    `json:"volume"`

	// Timestamp is the capture time, set by the source on receipt.
	Timestamp time.Time `json:"-"`
}

// Tick is one normalized quote observation. Ticks are only constructible
// through ParseTick, so every Tick in a window buffer satisfies
// bid > 0, ask > 0, bid < ask and spread <= 0.25*mid.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Mid       float64   `json:"mid"`
	Spread    float64   `json:"spread"`
	Last      float64   `json:"last"`
	Volume    int64     `json:"volume"`
	BidVolume int64     `json:"bid_volume"`
	AskVolume int64     `json:"ask_volume"`
}

// maxSpreadFraction rejects quotes whose spread exceeds this fraction of
// the midpoint as stale or erroneous.
const maxSpreadFraction = 0.25

// ParseTick validates a raw quote and builds a Tick from it. The second
// return value is false when the quote is rejected; rejection is routine
// (crossed markets, stale quotes, junk fields) and is not an error.
//
// Rejection rules, in order: non-numeric or non-positive bid/ask;
// bid >= ask (crossed or locked market); spread > 0.25*mid.
// Defaults: last falls back to mid, volume to bidVolume+askVolume,
// size fields to 0.
func ParseTick(q RawQuote) (Tick, bool) {
	if !q.Bid.Valid || q.Bid.Value <= 0 {
		return Tick{}, false
	}
	if !q.Ask.Valid || q.Ask.Value <= 0 {
		return Tick{}, false
	}

	bid, ask := q.Bid.Value, q.Ask.Value
	if bid >= ask {
		return Tick{}, false
	}

	mid := (bid + ask) / 2
	spread := ask - bid
	if spread > maxSpreadFraction*mid {
		return Tick{}, false
	}

	last := q.Last.Float(mid)
	if last <= 0 {
		last = mid
	}

	bidVolume := q.BidSize.Count()
	askVolume := q.AskSize.Count()

	volume := q.Volume.Count()
	if !q.Volume.Valid || q.Volume.Value < 0 {
		volume = bidVolume + askVolume
	}

	ts := q.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return Tick{
		Symbol:    q.Symbol,
		Timestamp: ts,
		Bid:       bid,
		Ask:       ask,
		Mid:       mid,
		Spread:    spread,
		Last:      last,
		Volume:    volume,
		BidVolume: bidVolume,
		AskVolume: askVolume,
	}, true
}
