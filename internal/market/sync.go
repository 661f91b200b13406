package market

import (
	"context"
	"strings"
	"time"

	"github.com/rickgao/binance-cache/internal/model"
)

// initialSync loads symbols from the REST API on startup.
func (r *registryImpl) initialSync(ctx context.Context) error {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	r.logger.Info("starting initial symbol sync", "restricted_to", len(r.cfg.Symbols))
	start := time.Now()

	symbols, err := r.source.GetSymbols(ctx, r.cfg.Symbols...)
	if err != nil {
		return err
	}

	r.state.mu.Lock()
	for _, sym := range symbols {
		r.state.upsertSymbolLocked(sym)
		info := r.state.symbols[strings.ToUpper(sym.Name)]
		r.state.notifyChange(SymbolChange{
			Symbol:    info.Name,
			EventType: EventListed,
			NewStatus: info.Status,
			Info:      copySymbol(info),
		})
	}
	r.state.lastSyncAt = time.Now()
	trading := len(r.state.tradingSet)
	r.state.mu.Unlock()

	r.logger.Info("initial sync complete",
		"total_symbols", len(symbols),
		"trading_symbols", trading,
		"duration", time.Since(start),
	)

	return nil
}

// reconciliationLoop periodically syncs with the REST API.
func (r *registryImpl) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reconciliation failed", "err", err)
			}
		}
	}
}

// Reconcile fetches symbols and detects listings, status changes and, when
// tracking the whole exchange, delistings.
func (r *registryImpl) Reconcile(ctx context.Context) error {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	start := time.Now()

	symbols, err := r.source.GetSymbols(ctx, r.cfg.Symbols...)
	if err != nil {
		return err
	}

	var listed, changed, delisted int
	seen := make(map[string]struct{}, len(symbols))

	r.state.mu.Lock()
	for _, sym := range symbols {
		name := strings.ToUpper(sym.Name)
		var oldStatus model.SymbolStatus
		existing, ok := r.state.symbols[name]
		if ok {
			oldStatus = existing.Status
		}

		r.state.upsertSymbolLocked(sym)
		info := r.state.symbols[name]
		seen[info.Name] = struct{}{}

		switch {
		case !ok:
			r.state.notifyChange(SymbolChange{
				Symbol:    info.Name,
				EventType: EventListed,
				NewStatus: info.Status,
				Info:      copySymbol(info),
			})
			listed++
		case oldStatus != info.Status:
			r.state.notifyChange(SymbolChange{
				Symbol:    info.Name,
				EventType: EventStatusChange,
				OldStatus: oldStatus,
				NewStatus: info.Status,
				Info:      copySymbol(info),
			})
			changed++
		}
	}

	if len(r.cfg.Symbols) == 0 {
		for name, sym := range r.state.symbols {
			if _, ok := seen[name]; ok {
				continue
			}
			oldStatus := sym.Status
			r.state.removeSymbolLocked(name)
			r.state.notifyChange(SymbolChange{
				Symbol:    name,
				EventType: EventDelisted,
				OldStatus: oldStatus,
			})
			delisted++
		}
	}
	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	if listed > 0 || changed > 0 || delisted > 0 {
		r.logger.Info("reconciliation found changes",
			"listed", listed,
			"changed", changed,
			"delisted", delisted,
			"duration", time.Since(start),
		)
	} else {
		r.logger.Debug("reconciliation complete",
			"total_symbols", len(symbols),
			"duration", time.Since(start),
		)
	}
	return nil
}
