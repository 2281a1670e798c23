package postgres

import (
	"context"
	"fmt"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// BotSimulationConfigStore implements storage.BotSimulationConfigStore using PostgreSQL.
// Only the (run, bot, version) pin is stored; the config is joined from bot_configs.
type BotSimulationConfigStore struct {
	pool *Pool
}

// NewBotSimulationConfigStore creates a new BotSimulationConfigStore.
func NewBotSimulationConfigStore(pool *Pool) *BotSimulationConfigStore {
	return &BotSimulationConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BotSimulationConfigStore = (*BotSimulationConfigStore)(nil)

// InsertBulk pins bot versions to a run. Fails entire batch on duplicate (run_id, bot_id).
func (s *BotSimulationConfigStore) InsertBulk(ctx context.Context, configs []*domain.BotSimulationConfig) error {
	if len(configs) == 0 {
		return nil
	}
	for _, c := range configs {
		if c == nil || c.RunID == "" || c.BotID == "" || c.BotVersion <= 0 {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO bot_simulation_configs (run_id, bot_id, bot_version) VALUES ($1, $2, $3)`
	for _, c := range configs {
		if _, err := tx.Exec(ctx, query, c.RunID, c.BotID, c.BotVersion); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert bot simulation config in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves the pinned configs of a run, ordered by bot_id ASC.
func (s *BotSimulationConfigStore) GetByRunID(ctx context.Context, runID string) ([]*domain.BotSimulationConfig, error) {
	query := `
		SELECT p.run_id, p.bot_id, p.bot_version,
		       c.config, c.aggregation, c.rules, c.created_at
		FROM bot_simulation_configs p
		JOIN bot_configs c ON c.id = p.bot_id AND c.version = p.bot_version
		WHERE p.run_id = $1
		ORDER BY p.bot_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get bot simulation configs by run id: %w", err)
	}
	defer rows.Close()

	var result []*domain.BotSimulationConfig
	for rows.Next() {
		var (
			p             domain.BotSimulationConfig
			config, rules []byte
			aggregation   string
		)
		err := rows.Scan(
			&p.RunID, &p.BotID, &p.BotVersion,
			&config, &aggregation, &rules, &p.Config.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bot simulation config row: %w", err)
		}
		if _, err := decodeBotConfig(&p.Config, config, aggregation, rules); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bot simulation config rows: %w", err)
	}
	return result, nil
}
