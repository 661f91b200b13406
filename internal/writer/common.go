package writer

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/binance-cache/internal/model"
)

// priceLevelJSON represents a price level in JSONB format.
type priceLevelJSON struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

// levelsToJSONB converts the first depth levels to JSONB bytes. depth <= 0
// keeps every level.
func levelsToJSONB(levels []model.PriceLevel, depth int) []byte {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	result := make([]priceLevelJSON, len(levels))
	for i, level := range levels {
		result[i] = priceLevelJSON{
			Price: level.Price.String(),
			Qty:   level.Quantity.String(),
		}
	}
	data, _ := json.Marshal(result)
	return data
}

func decimalPtr(d decimal.Decimal, ok bool) *decimal.Decimal {
	if !ok {
		return nil
	}
	return &d
}

// sendBatch executes every queued statement and counts rows skipped by
// ON CONFLICT DO NOTHING.
func sendBatch(ctx context.Context, db BatchSender, batch *pgx.Batch) (conflicts int, err error) {
	results := db.SendBatch(ctx, batch)
	defer results.Close()

	for range batch.Len() {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
