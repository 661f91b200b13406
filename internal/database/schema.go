package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a single statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema lists the recorder tables in creation order. All statements are
// idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS agg_trades (
		symbol          TEXT        NOT NULL,
		agg_trade_id    BIGINT      NOT NULL,
		price           NUMERIC     NOT NULL,
		quantity        NUMERIC     NOT NULL,
		first_trade_id  BIGINT      NOT NULL,
		last_trade_id   BIGINT      NOT NULL,
		trade_time      BIGINT      NOT NULL,
		is_buyer_maker  BOOLEAN     NOT NULL,
		received_at     BIGINT      NOT NULL,
		PRIMARY KEY (symbol, agg_trade_id)
	)`,
	`CREATE TABLE IF NOT EXISTS candlesticks (
		symbol           TEXT    NOT NULL,
		interval         TEXT    NOT NULL,
		open_time        BIGINT  NOT NULL,
		close_time       BIGINT  NOT NULL,
		open             NUMERIC NOT NULL,
		high             NUMERIC NOT NULL,
		low              NUMERIC NOT NULL,
		close            NUMERIC NOT NULL,
		volume           NUMERIC NOT NULL,
		quote_volume     NUMERIC NOT NULL,
		trade_count      BIGINT  NOT NULL,
		taker_buy_base   NUMERIC NOT NULL,
		taker_buy_quote  NUMERIC NOT NULL,
		PRIMARY KEY (symbol, interval, open_time)
	)`,
	`CREATE TABLE IF NOT EXISTS orderbook_snapshots (
		symbol          TEXT    NOT NULL,
		last_update_id  BIGINT  NOT NULL,
		snapshot_ts     BIGINT  NOT NULL,
		bids            JSONB   NOT NULL,
		asks            JSONB   NOT NULL,
		best_bid        NUMERIC,
		best_ask        NUMERIC,
		spread          NUMERIC,
		PRIMARY KEY (symbol, last_update_id)
	)`,
}

// EnsureSchema creates the recorder tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
