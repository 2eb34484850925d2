package core

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erain9/exchange/pkg/logging"
)

// BookInfo contains metadata about a registered book
type BookInfo struct {
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"createdAt"`
	// LastSequence is the event sequence the book resumed from
	LastSequence uint64 `json:"lastSequence"`
}

// BookRegistry maps symbols to their order books.
//
// The registry lock only guards the maps; it is never held while a book is
// locked for matching, so books of different symbols proceed in parallel.
type BookRegistry struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
	info  map[string]*BookInfo

	index *orderIndex
}

// NewBookRegistry creates an empty registry
func NewBookRegistry() *BookRegistry {
	return &BookRegistry{
		books: make(map[string]*OrderBook),
		info:  make(map[string]*BookInfo),
		index: newOrderIndex(),
	}
}

// Register creates an empty book for symbol
func (r *BookRegistry) Register(ctx context.Context, symbol string) (*BookInfo, error) {
	return r.register(ctx, symbol, 0)
}

// register creates a book whose first event gets sequence lastSeq+1
func (r *BookRegistry) register(ctx context.Context, symbol string, lastSeq uint64) (*BookInfo, error) {
	logger := logging.FromContext(ctx).With().Str("symbol", symbol).Logger()

	if strings.TrimSpace(symbol) == "" {
		return nil, ErrInvalidSymbol
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.books[symbol]; exists {
		logger.Debug().Msg("Order book already exists")
		return nil, ErrSymbolExists
	}

	book := newOrderBook(symbol, r.index)
	book.eventSeq = lastSeq
	r.books[symbol] = book
	info := &BookInfo{
		Symbol:       symbol,
		CreatedAt:    time.Now(),
		LastSequence: lastSeq,
	}
	r.info[symbol] = info

	logger.Info().Uint64("last_sequence", lastSeq).Msg("Registered order book")
	return info, nil
}

// Get returns the book for symbol
func (r *BookRegistry) Get(symbol string) (*OrderBook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[symbol]
	if !ok {
		return nil, ErrSymbolNotFound
	}
	return book, nil
}

// Locate returns the book currently holding a live order. The answer may be
// stale by the time the caller locks the book; the book's own order map
// decides.
func (r *BookRegistry) Locate(orderID string) (*OrderBook, bool) {
	symbol, ok := r.index.lookup(orderID)
	if !ok {
		return nil, false
	}

	book, err := r.Get(symbol)
	if err != nil {
		return nil, false
	}
	return book, true
}

// Symbols returns the registered symbols in sorted order
func (r *BookRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.books))
	for symbol := range r.books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// List returns metadata for every registered book
func (r *BookRegistry) List() []*BookInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*BookInfo, 0, len(r.info))
	for _, info := range r.info {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

// orderIndex maps live order ids to their symbol so a cancel carrying only
// an id can find its book. Book locks are taken before the index lock,
// never the other way round.
type orderIndex struct {
	mu  sync.RWMutex
	ids map[string]string
}

func newOrderIndex() *orderIndex {
	return &orderIndex{ids: make(map[string]string)}
}

func (x *orderIndex) add(orderID, symbol string) {
	x.mu.Lock()
	x.ids[orderID] = symbol
	x.mu.Unlock()
}

func (x *orderIndex) remove(orderID string) {
	x.mu.Lock()
	delete(x.ids, orderID)
	x.mu.Unlock()
}

func (x *orderIndex) lookup(orderID string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	symbol, ok := x.ids[orderID]
	return symbol, ok
}

func (x *orderIndex) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}
