package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/johnayoung/go-futures-trades/internal/models"
)

// generateBenchTrades decodes n provider-shaped records.
func generateBenchTrades(b *testing.B, n int) []models.Trade {
	b.Helper()
	trades := make([]models.Trade, n)
	for i := range trades {
		raw := fmt.Sprintf(`{"ticker":"ESZ5","timestamp":%d,"price":%d.25,"size":%d,"conditions":[1,4],"correction":false}`,
			1755820800000000000+int64(i), 6400+i%100, 1+i%7)
		if err := json.Unmarshal([]byte(raw), &trades[i]); err != nil {
			b.Fatalf("decode failed: %v", err)
		}
	}
	return trades
}

// BenchmarkCSVWriter_Encode measures rows per second for a full 50,000-record page.
func BenchmarkCSVWriter_Encode(b *testing.B) {
	if testing.Short() {
		b.Skip("skipping benchmark in short mode")
	}

	writer := NewCSVWriter(SchemaFirst, nil)
	trades := generateBenchTrades(b, 50000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := writer.Encode(io.Discard, trades); err != nil {
			b.Fatalf("Encode failed: %v", err)
		}
	}

	duration := time.Duration(b.Elapsed().Nanoseconds())
	rows := int64(b.N) * int64(len(trades))
	b.ReportMetric(float64(rows)/duration.Seconds(), "rows/sec")
}

func BenchmarkHeader_Union(b *testing.B) {
	trades := generateBenchTrades(b, 10000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Header(trades, SchemaUnion)
	}
}
