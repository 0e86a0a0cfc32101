package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory SignalStore for tests and dry runs. It
// applies the same status preconditions as the SQL implementation so the
// loops see identical transition semantics.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	signals map[int64]*Signal
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, signals: make(map[int64]*Signal)}
}

func (m *MemoryStore) CreateSignal(ctx context.Context, signal *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if signal.EntryPrice <= 0 {
		return fmt.Errorf("invalid entry price %.8f for %s", signal.EntryPrice, signal.Symbol)
	}
	if signal.PeakPrice < signal.EntryPrice {
		signal.PeakPrice = signal.EntryPrice
	}
	if signal.Status == "" {
		signal.Status = StatusPending
	}
	signal.ID = m.nextID
	signal.CreatedAt = time.Now()
	signal.UpdatedAt = signal.CreatedAt
	m.nextID++

	copied := *signal
	m.signals[signal.ID] = &copied
	return nil
}

func (m *MemoryStore) GetSignalByID(ctx context.Context, id int64) (*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig, ok := m.signals[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sig
	return &copied, nil
}

func (m *MemoryStore) GetSignalsByStatus(ctx context.Context, statuses ...string) ([]*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Signal
	for _, sig := range m.signals {
		for _, st := range statuses {
			if sig.Status == st {
				copied := *sig
				out = append(out, &copied)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetActiveTradedSignals(ctx context.Context) ([]*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Signal
	for _, sig := range m.signals {
		if sig.Traded && sig.Status == StatusActive {
			copied := *sig
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetUntradedPendingSignals(ctx context.Context) ([]*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Signal
	for _, sig := range m.signals {
		if !sig.Traded && sig.Status == StatusPending {
			copied := *sig
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Signal
	for _, sig := range m.signals {
		if sig.Status == StatusPending && sig.DetectedAt.Before(cutoff) {
			copied := *sig
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) MarkTraded(ctx context.Context, id int64, amount, volume float64, orderUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig, ok := m.signals[id]
	if !ok {
		return ErrNotFound
	}
	if sig.Status != StatusPending {
		return ErrAlreadyClosed
	}
	sig.Traded = true
	sig.TradeAmount = &amount
	sig.TradeVolume = &volume
	sig.OrderUUID = &orderUUID
	sig.Status = StatusActive
	sig.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) RaisePeakPrice(ctx context.Context, id int64, price float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig, ok := m.signals[id]
	if !ok {
		return 0, ErrNotFound
	}
	if IsTerminal(sig.Status) {
		return 0, ErrAlreadyClosed
	}
	if price > sig.PeakPrice {
		sig.PeakPrice = price
		sig.UpdatedAt = time.Now()
	}
	return sig.PeakPrice, nil
}

func (m *MemoryStore) CloseSignal(ctx context.Context, id int64, closure Closure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig, ok := m.signals[id]
	if !ok {
		return ErrNotFound
	}
	if !IsTerminal(closure.Status) {
		return fmt.Errorf("close requires a terminal status, got %q", closure.Status)
	}
	if IsTerminal(sig.Status) {
		return ErrAlreadyClosed
	}

	now := time.Now()
	sig.Status = closure.Status
	sig.ExitPrice = &closure.ExitPrice
	sig.CloseReason = &closure.CloseReason
	sig.ClosedAt = &now
	sig.ProfitLoss = &closure.ProfitLoss
	sig.ProfitLossPercent = &closure.ProfitLossPercent
	sig.UpdatedAt = now
	return nil
}

func (m *MemoryStore) RecentSignals(ctx context.Context, status string, limit int) ([]*Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Signal
	for _, sig := range m.signals {
		if status == "" || sig.Status == status {
			copied := *sig
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, sig := range m.signals {
		counts[sig.Status]++
	}
	return counts, nil
}
