package market

import (
	"strings"
	"sync"
	"time"

	"github.com/rickgao/binance-cache/internal/model"
)

// registryState holds the thread-safe symbol cache.
type registryState struct {
	mu sync.RWMutex

	// All known symbols indexed by upper-case name.
	symbols map[string]*model.Symbol

	// Symbols currently trading.
	tradingSet map[string]struct{}

	// Last successful REST sync timestamp.
	lastSyncAt time.Time

	changes chan SymbolChange
}

func newState() *registryState {
	return &registryState{
		symbols:    make(map[string]*model.Symbol),
		tradingSet: make(map[string]struct{}),
		changes:    make(chan SymbolChange, ChangeBufferSize),
	}
}

// getSymbol returns a symbol by name (read-locked).
func (s *registryState) getSymbol(name string) (model.Symbol, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sym, ok := s.symbols[strings.ToUpper(name)]
	if !ok {
		return model.Symbol{}, false
	}
	return *sym, true
}

// isTrading reports trading status (read-locked).
func (s *registryState) isTrading(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tradingSet[strings.ToUpper(name)]
	return ok
}

// getTradingSymbols returns a copy of all trading symbols (read-locked).
func (s *registryState) getTradingSymbols() []model.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Symbol, 0, len(s.tradingSet))
	for name := range s.tradingSet {
		if sym, ok := s.symbols[name]; ok {
			result = append(result, *sym)
		}
	}
	return result
}

// upsertSymbol adds or updates a symbol (write-locked).
func (s *registryState) upsertSymbol(sym model.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertSymbolLocked(sym)
}

// upsertSymbolLocked adds or updates a symbol (caller must hold write lock).
func (s *registryState) upsertSymbolLocked(sym model.Symbol) {
	sym.Name = strings.ToUpper(sym.Name)
	symCopy := sym
	s.symbols[sym.Name] = &symCopy

	if sym.IsTrading() {
		s.tradingSet[sym.Name] = struct{}{}
	} else {
		delete(s.tradingSet, sym.Name)
	}
}

// removeSymbolLocked forgets a symbol (caller must hold write lock).
func (s *registryState) removeSymbolLocked(name string) {
	delete(s.symbols, name)
	delete(s.tradingSet, name)
}

// notifyChange sends a change to the changes channel (non-blocking).
func (s *registryState) notifyChange(change SymbolChange) {
	select {
	case s.changes <- change:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-s.changes:
			s.changes <- change
		default:
		}
	}
}

func copySymbol(sym *model.Symbol) *model.Symbol {
	c := *sym
	return &c
}
