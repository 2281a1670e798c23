package domain

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a SimulationRun.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// SimulationRun is one multi-bot backtest over a date range.
type SimulationRun struct {
	ID          string    `json:"id"`                      // opaque run id
	ParentRunID string    `json:"parent_run_id,omitempty"` // set when created by rerun
	Name        string    `json:"name"`                    // display name
	Status      RunStatus `json:"status"`                  // lifecycle state
	StartDate   time.Time `json:"start_date"`              // first simulated day (UTC)
	EndDate     time.Time `json:"end_date"`                // last simulated day (UTC, inclusive)
	Symbols     []string  `json:"symbols"`                 // stock universe
	Interval    string    `json:"interval"`                // bar interval used when ticks are unavailable

	// Progress
	Progress      float64   `json:"progress"` // [0,100]
	CurrentDay    time.Time `json:"current_day"`
	DaysCompleted int       `json:"days_completed"`
	TotalDays     int       `json:"total_days"`
	BotsCompleted int       `json:"bots_completed"` // bots finished with CurrentDay
	TotalBots     int       `json:"total_bots"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// ProgressSnapshot returns the consumer-facing view of the run.
func (r *SimulationRun) ProgressSnapshot() RunProgress {
	return RunProgress{
		RunID:         r.ID,
		Status:        r.Status,
		Progress:      r.Progress,
		CurrentDay:    r.CurrentDay,
		DaysCompleted: r.DaysCompleted,
		TotalDays:     r.TotalDays,
		BotsCompleted: r.BotsCompleted,
		TotalBots:     r.TotalBots,
		ErrorMessage:  r.ErrorMessage,
	}
}

// ApplyProgress copies progress fields onto the run.
func (r *SimulationRun) ApplyProgress(p RunProgress) {
	r.Status = p.Status
	r.Progress = p.Progress
	r.CurrentDay = p.CurrentDay
	r.DaysCompleted = p.DaysCompleted
	r.TotalDays = p.TotalDays
	r.BotsCompleted = p.BotsCompleted
	r.TotalBots = p.TotalBots
	r.ErrorMessage = p.ErrorMessage
}

// RunProgress is published as a whole; consumers never see a partial update.
type RunProgress struct {
	RunID         string    `json:"run_id"`
	Status        RunStatus `json:"status"`
	Progress      float64   `json:"progress"`
	CurrentDay    time.Time `json:"current_day"`
	DaysCompleted int       `json:"days_completed"`
	TotalDays     int       `json:"total_days"`
	BotsCompleted int       `json:"bots_completed"`
	TotalBots     int       `json:"total_bots"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BotSimulationConfig pins a bot config version to a run.
type BotSimulationConfig struct {
	RunID      string
	BotID      string
	BotVersion int
	Config     BotConfig
}

// SimulationRequest is the input to createSimulation.
type SimulationRequest struct {
	Name        string
	ParentRunID string
	StartDate   time.Time
	EndDate     time.Time
	Symbols     []string
	Interval    string
	Bots        []BotConfig
}

// Validate checks the request and every bot. All errors wrap ErrInvalidConfig.
func (r *SimulationRequest) Validate() error {
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidConfig)
	}
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidConfig)
	}
	if len(TradingDays(r.StartDate, r.EndDate)) == 0 {
		return fmt.Errorf("%w: date range contains no trading days", ErrInvalidConfig)
	}
	if len(r.Bots) == 0 {
		return fmt.Errorf("%w: at least one bot is required", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(r.Bots))
	for i := range r.Bots {
		b := &r.Bots[i]
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("%w: duplicate bot %s", ErrInvalidConfig, b.ID)
		}
		seen[b.ID] = struct{}{}
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Universe returns the union of request and bot symbols in first-seen order.
func (r *SimulationRequest) Universe() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if _, ok := seen[s]; ok || s == "" {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range r.Symbols {
		add(s)
	}
	for _, b := range r.Bots {
		for _, s := range b.Symbols {
			add(s)
		}
	}
	return out
}

// Clone returns a deep copy.
func (r *SimulationRun) Clone() *SimulationRun {
	c := *r
	c.Symbols = append([]string(nil), r.Symbols...)
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
