package models

import (
	"github.com/shopspring/decimal"
)

// Field names used by the trade summary. Records that lack them still count
// toward Count but do not contribute to the price, size or time statistics.
const (
	FieldPrice     = "price"
	FieldSize      = "size"
	FieldTimestamp = "timestamp"
)

// TradeSummary holds descriptive statistics for a downloaded trade set.
// It is used for reporting only and never alters what gets written.
type TradeSummary struct {
	Count          int             `json:"count"`
	PricedCount    int             `json:"priced_count"`
	MinPrice       decimal.Decimal `json:"min_price"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	TotalSize      decimal.Decimal `json:"total_size"`
	FirstTimestamp decimal.Decimal `json:"first_timestamp"`
	LastTimestamp  decimal.Decimal `json:"last_timestamp"`
	HasTimestamps  bool            `json:"has_timestamps"`
}

// Summarize computes a TradeSummary using exact decimal arithmetic, so large
// nanosecond timestamps and fractional prices are never rounded.
func Summarize(trades []Trade) TradeSummary {
	summary := TradeSummary{
		Count:     len(trades),
		TotalSize: decimal.Zero,
	}

	for _, trade := range trades {
		if price, ok := decimalField(trade, FieldPrice); ok {
			if summary.PricedCount == 0 || price.LessThan(summary.MinPrice) {
				summary.MinPrice = price
			}
			if summary.PricedCount == 0 || price.GreaterThan(summary.MaxPrice) {
				summary.MaxPrice = price
			}
			summary.PricedCount++
		}

		if size, ok := decimalField(trade, FieldSize); ok {
			summary.TotalSize = summary.TotalSize.Add(size)
		}

		if ts, ok := decimalField(trade, FieldTimestamp); ok {
			if !summary.HasTimestamps || ts.LessThan(summary.FirstTimestamp) {
				summary.FirstTimestamp = ts
			}
			if !summary.HasTimestamps || ts.GreaterThan(summary.LastTimestamp) {
				summary.LastTimestamp = ts
			}
			summary.HasTimestamps = true
		}
	}

	return summary
}

// LogAttrs flattens the summary into slog key/value pairs.
func (s TradeSummary) LogAttrs() []interface{} {
	attrs := []interface{}{"trades", s.Count}
	if s.PricedCount > 0 {
		attrs = append(attrs,
			"min_price", s.MinPrice.String(),
			"max_price", s.MaxPrice.String())
	}
	attrs = append(attrs, "total_size", s.TotalSize.String())
	if s.HasTimestamps {
		attrs = append(attrs,
			"first_timestamp", s.FirstTimestamp.String(),
			"last_timestamp", s.LastTimestamp.String())
	}
	return attrs
}

func decimalField(trade Trade, key string) (decimal.Decimal, bool) {
	text := trade.String(key)
	if text == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
