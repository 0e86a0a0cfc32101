package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrAlreadyClosed is returned when a closing update matches no open row:
// another loop won the race. Callers treat it as a no-op.
var ErrAlreadyClosed = errors.New("signal already closed")

// ErrNotFound is returned when a signal does not exist
var ErrNotFound = errors.New("signal not found")

// SignalStore is the persistence surface all loops share. Every
// status-changing statement carries its expected prior status in the WHERE
// clause so two loops racing on one row cannot both win.
type SignalStore interface {
	CreateSignal(ctx context.Context, signal *Signal) error
	GetSignalByID(ctx context.Context, id int64) (*Signal, error)
	GetSignalsByStatus(ctx context.Context, statuses ...string) ([]*Signal, error)
	GetActiveTradedSignals(ctx context.Context) ([]*Signal, error)
	GetUntradedPendingSignals(ctx context.Context) ([]*Signal, error)
	GetPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*Signal, error)
	MarkTraded(ctx context.Context, id int64, amount, volume float64, orderUUID string) error
	RaisePeakPrice(ctx context.Context, id int64, price float64) (float64, error)
	CloseSignal(ctx context.Context, id int64, closure Closure) error
	RecentSignals(ctx context.Context, status string, limit int) ([]*Signal, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Repository is the pgx-backed SignalStore
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the connection pool
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

const signalColumns = `id, symbol, detected_at, score, pattern, timing, recommendation, breakdown,
	entry_price, target_price, stop_loss_price, peak_price, exit_price,
	traded, trade_amount, trade_volume, order_uuid,
	status, close_reason, closed_at, profit_loss, profit_loss_percent,
	created_at, updated_at`

// CreateSignal inserts a new signal row. The peak price starts at the
// entry price so drop-from-peak math is valid from the first tick.
func (r *Repository) CreateSignal(ctx context.Context, signal *Signal) error {
	if signal.EntryPrice <= 0 {
		return fmt.Errorf("invalid entry price %.8f for %s", signal.EntryPrice, signal.Symbol)
	}
	if signal.PeakPrice < signal.EntryPrice {
		signal.PeakPrice = signal.EntryPrice
	}
	if signal.Status == "" {
		signal.Status = StatusPending
	}

	query := `
		INSERT INTO signals (symbol, detected_at, score, pattern, timing, recommendation, breakdown,
			entry_price, target_price, stop_loss_price, peak_price,
			traded, trade_amount, trade_volume, order_uuid, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		signal.Symbol, signal.DetectedAt, signal.Score, signal.Pattern, signal.Timing,
		signal.Recommendation, signal.Breakdown,
		signal.EntryPrice, signal.TargetPrice, signal.StopLossPrice, signal.PeakPrice,
		signal.Traded, signal.TradeAmount, signal.TradeVolume, signal.OrderUUID, signal.Status,
	).Scan(&signal.ID, &signal.CreatedAt, &signal.UpdatedAt)
}

// GetSignalByID retrieves one signal
func (r *Repository) GetSignalByID(ctx context.Context, id int64) (*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`
	signal, err := scanSignal(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return signal, err
}

// GetSignalsByStatus retrieves signals in any of the given states
func (r *Repository) GetSignalsByStatus(ctx context.Context, statuses ...string) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE status = ANY($1) ORDER BY detected_at`
	rows, err := r.db.Pool.Query(ctx, query, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

// GetActiveTradedSignals returns the position monitor's working set
func (r *Repository) GetActiveTradedSignals(ctx context.Context) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE status = $1 AND traded ORDER BY detected_at`
	rows, err := r.db.Pool.Query(ctx, query, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

// GetUntradedPendingSignals returns the stale-closer's working set
func (r *Repository) GetUntradedPendingSignals(ctx context.Context) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE status = $1 AND NOT traded ORDER BY detected_at`
	rows, err := r.db.Pool.Query(ctx, query, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

// GetPendingOlderThan returns pending signals detected before the cutoff,
// the outcome reconciler's working set.
func (r *Repository) GetPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE status = $1 AND detected_at < $2 ORDER BY detected_at`
	rows, err := r.db.Pool.Query(ctx, query, StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

// MarkTraded records an opened position and moves the signal to active.
// Conditional on pending so a signal cannot be traded twice.
func (r *Repository) MarkTraded(ctx context.Context, id int64, amount, volume float64, orderUUID string) error {
	query := `
		UPDATE signals
		SET status = $2, traded = TRUE, trade_amount = $3, trade_volume = $4,
		    order_uuid = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, StatusActive, amount, volume, orderUUID, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyClosed
	}
	return nil
}

// RaisePeakPrice lifts peak_price to the observed price if higher and
// returns the stored peak. GREATEST keeps the column monotonic even when
// two loops write concurrently.
func (r *Repository) RaisePeakPrice(ctx context.Context, id int64, price float64) (float64, error) {
	query := `
		UPDATE signals
		SET peak_price = GREATEST(peak_price, $2), updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING peak_price
	`
	var peak float64
	err := r.db.Pool.QueryRow(ctx, query, id, price, OpenStatuses).Scan(&peak)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAlreadyClosed
	}
	return peak, err
}

// CloseSignal finalizes a signal. The update only matches rows still in an
// open state, so re-closing an already-closed signal affects zero rows and
// surfaces as ErrAlreadyClosed (an idempotent no-op for callers).
func (r *Repository) CloseSignal(ctx context.Context, id int64, closure Closure) error {
	if !IsTerminal(closure.Status) {
		return fmt.Errorf("close requires a terminal status, got %q", closure.Status)
	}

	query := `
		UPDATE signals
		SET status = $2, exit_price = $3, close_reason = $4,
		    profit_loss = $5, profit_loss_percent = $6,
		    closed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = ANY($7)
	`
	tag, err := r.db.Pool.Exec(ctx, query, id,
		closure.Status, closure.ExitPrice, closure.CloseReason,
		closure.ProfitLoss, closure.ProfitLossPercent, OpenStatuses)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyClosed
	}
	return nil
}

// RecentSignals returns the newest signals, optionally filtered by status
func (r *Repository) RecentSignals(ctx context.Context, status string, limit int) ([]*Signal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if status != "" {
		query := `SELECT ` + signalColumns + ` FROM signals WHERE status = $1 ORDER BY detected_at DESC LIMIT $2`
		rows, err = r.db.Pool.Query(ctx, query, status, limit)
	} else {
		query := `SELECT ` + signalColumns + ` FROM signals ORDER BY detected_at DESC LIMIT $1`
		rows, err = r.db.Pool.Query(ctx, query, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

// CountByStatus returns row counts per lifecycle state
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM signals GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanSignal(row pgx.Row) (*Signal, error) {
	s := &Signal{}
	err := row.Scan(
		&s.ID, &s.Symbol, &s.DetectedAt, &s.Score, &s.Pattern, &s.Timing, &s.Recommendation, &s.Breakdown,
		&s.EntryPrice, &s.TargetPrice, &s.StopLossPrice, &s.PeakPrice, &s.ExitPrice,
		&s.Traded, &s.TradeAmount, &s.TradeVolume, &s.OrderUUID,
		&s.Status, &s.CloseReason, &s.ClosedAt, &s.ProfitLoss, &s.ProfitLossPercent,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSignals(rows pgx.Rows) ([]*Signal, error) {
	signals := make([]*Signal, 0)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}
