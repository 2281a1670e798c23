package signal

import (
	"fmt"
	"strings"

	"stock-bot-lab/internal/domain"
)

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	// PredictionBaseURL serves prediction kinds without an explicit endpoint
	// at <base>/v1/predict/<kind>.
	PredictionBaseURL string
	Client            *PredictionClient
}

// Factory builds the standard adapters from source configs.
type Factory struct {
	baseURL string
	client  *PredictionClient
}

// NewFactory creates a Factory.
func NewFactory(opts FactoryOptions) *Factory {
	client := opts.Client
	if client == nil {
		client = NewPredictionClient()
	}
	return &Factory{
		baseURL: strings.TrimRight(opts.PredictionBaseURL, "/"),
		client:  client,
	}
}

// Build returns one Source per enabled source in configured order.
func (f *Factory) Build(cfg domain.BotConfig) ([]Source, error) {
	var out []Source
	for _, sc := range cfg.EnabledSources() {
		src, err := f.build(sc)
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", cfg.ID, err)
		}
		out = append(out, src)
	}
	return out, nil
}

func (f *Factory) build(sc domain.SourceConfig) (Source, error) {
	switch {
	case sc.Kind == domain.SourceKindIndicator:
		return NewIndicatorSource(sc)
	case sc.Kind == domain.SourceKindPattern:
		return NewPatternSource(sc), nil
	case sc.Kind.IsPrediction():
		endpoint := sc.Endpoint
		if endpoint == "" {
			if f.baseURL == "" {
				return nil, fmt.Errorf("%w: source %s needs an endpoint", domain.ErrInvalidConfig, sc.ID)
			}
			endpoint = f.baseURL + "/v1/predict/" + string(sc.Kind)
		}
		return NewPredictionSource(sc, endpoint, f.client), nil
	}
	return nil, fmt.Errorf("%w: source %s has unknown kind %q", domain.ErrInvalidConfig, sc.ID, sc.Kind)
}

var _ Builder = (*Factory)(nil)
