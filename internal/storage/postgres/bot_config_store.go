package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage"
)

// BotConfigStore implements storage.BotConfigStore using PostgreSQL.
//
// The config column holds the JSON form of the bot. The aggregation method is
// an interface, so its name and custom rules are stored in their own columns.
type BotConfigStore struct {
	pool *Pool
}

// NewBotConfigStore creates a new BotConfigStore.
func NewBotConfigStore(pool *Pool) *BotConfigStore {
	return &BotConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BotConfigStore = (*BotConfigStore)(nil)

const botConfigColumns = `config, aggregation, rules, created_at`

// Insert adds a config version. Returns ErrDuplicateKey if (id, version) exists.
func (s *BotConfigStore) Insert(ctx context.Context, c *domain.BotConfig) error {
	if c == nil || c.ID == "" || c.Version <= 0 || c.Aggregation == nil {
		return storage.ErrInvalidInput
	}

	config, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode bot config: %w", err)
	}
	var rules []byte
	if rs := domain.RulesOf(c.Aggregation); rs != nil {
		if rules, err = json.Marshal(rs); err != nil {
			return fmt.Errorf("encode bot rules: %w", err)
		}
	}

	query := `
		INSERT INTO bot_configs (id, version, name, config, aggregation, rules, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.pool.Exec(ctx, query,
		c.ID, c.Version, c.Name, config, c.Aggregation.Name(), rules, c.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bot config: %w", err)
	}
	return nil
}

// Get retrieves a specific version. Returns ErrNotFound if not exists.
func (s *BotConfigStore) Get(ctx context.Context, id string, version int) (*domain.BotConfig, error) {
	query := `SELECT ` + botConfigColumns + ` FROM bot_configs WHERE id = $1 AND version = $2`

	c, err := scanBotConfig(s.pool.QueryRow(ctx, query, id, version))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bot config: %w", err)
	}
	return c, nil
}

// GetLatest retrieves the highest version of a bot. Returns ErrNotFound if not exists.
func (s *BotConfigStore) GetLatest(ctx context.Context, id string) (*domain.BotConfig, error) {
	query := `
		SELECT ` + botConfigColumns + `
		FROM bot_configs
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	c, err := scanBotConfig(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest bot config: %w", err)
	}
	return c, nil
}

// scanBotConfig scans one row of botConfigColumns.
func scanBotConfig(row pgx.Row) (*domain.BotConfig, error) {
	var (
		config, rules []byte
		aggregation   string
		c             domain.BotConfig
	)
	if err := row.Scan(&config, &aggregation, &rules, &c.CreatedAt); err != nil {
		return nil, err
	}
	return decodeBotConfig(&c, config, aggregation, rules)
}

func decodeBotConfig(c *domain.BotConfig, config []byte, aggregation string, rules []byte) (*domain.BotConfig, error) {
	createdAt := c.CreatedAt.UTC()
	if err := json.Unmarshal(config, c); err != nil {
		return nil, fmt.Errorf("decode bot config: %w", err)
	}
	c.CreatedAt = createdAt

	var rs *domain.RuleSet
	if len(rules) > 0 {
		rs = &domain.RuleSet{}
		if err := json.Unmarshal(rules, rs); err != nil {
			return nil, fmt.Errorf("decode bot rules: %w", err)
		}
	}
	method, err := domain.ParseAggregationMethod(aggregation, rs)
	if err != nil {
		return nil, fmt.Errorf("decode aggregation of bot %s: %w", c.ID, err)
	}
	c.Aggregation = method
	return c, nil
}
