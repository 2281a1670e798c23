package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// InsertBulk adds terminal orders atomically. Fails entire batch on any duplicate.
func (s *OrderStore) InsertBulk(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	for _, o := range orders {
		if o == nil || o.ID == "" || o.BotID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (
			id, seq, run_id, bot_id, symbol,
			transaction_type, order_type, quantity, target_price, fill_price,
			status, reason, lot_id, realized_pnl, history, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17
		)
	`

	for _, o := range orders {
		history := o.History
		if history == nil {
			history = []domain.OrderTransition{}
		}
		historyJSON, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("encode order history: %w", err)
		}

		_, err = tx.Exec(ctx, query,
			o.ID, o.Seq, o.RunID, o.BotID, o.Symbol,
			string(o.TransactionType), string(o.OrderType), o.Quantity, o.TargetPrice, o.FillPrice,
			string(o.Status), o.Reason, o.LotID, o.RealizedPnL, historyJSON, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert order in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves all orders of a run, ordered by (bot_id, seq) ASC.
func (s *OrderStore) GetByRunID(ctx context.Context, runID string) ([]*domain.Order, error) {
	query := `
		SELECT
			id, seq, run_id, bot_id, symbol,
			transaction_type, order_type, quantity, target_price, fill_price,
			status, reason, lot_id, realized_pnl, history, created_at, updated_at
		FROM orders
		WHERE run_id = $1
		ORDER BY bot_id ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get orders by run id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var (
			o                         domain.Order
			txType, orderType, status string
			history                   []byte
		)
		err := rows.Scan(
			&o.ID, &o.Seq, &o.RunID, &o.BotID, &o.Symbol,
			&txType, &orderType, &o.Quantity, &o.TargetPrice, &o.FillPrice,
			&status, &o.Reason, &o.LotID, &o.RealizedPnL, &history, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		if err := json.Unmarshal(history, &o.History); err != nil {
			return nil, fmt.Errorf("decode history of order %s: %w", o.ID, err)
		}
		o.TransactionType = domain.TransactionType(txType)
		o.OrderType = domain.OrderType(orderType)
		o.Status = domain.OrderStatus(status)
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}
