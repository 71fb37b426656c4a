package flags

import (
	"sort"
	"sync"

	"github.com/tachyonlabs/modelgate/config"
	"go.uber.org/zap"
)

// Well-known flag keys consumed by the provider layer.
const (
	// KeyStrictLocalMode forces all generation onto the local provider.
	KeyStrictLocalMode = "strict_local_mode"

	// KeyLocalModel enables the on-device model as the preferred provider.
	KeyLocalModel = "local_model"

	// KeyOpenAIEnabled gates the OpenAI-backed provider.
	KeyOpenAIEnabled = "openai_enabled"

	// KeyAnthropicEnabled gates the Anthropic-backed provider.
	KeyAnthropicEnabled = "anthropic_enabled"
)

// Store answers feature-flag queries. Implementations must be synchronous
// and must never block on network I/O; the provider layer consults flags
// on the hot path of every request.
type Store interface {
	IsEnabled(key string) bool
}

// Service is a mutex-guarded in-memory flag store seeded from config.
// Flags can be toggled at runtime and take effect on the next request
// without a restart.
type Service struct {
	mu     sync.RWMutex
	values map[string]bool
	logger *zap.Logger
}

// NewService creates a flag service seeded from the configured defaults
func NewService(cfg config.FlagsConfig, logger *zap.Logger) *Service {
	return &Service{
		values: map[string]bool{
			KeyStrictLocalMode:  cfg.StrictLocalMode,
			KeyLocalModel:       cfg.LocalModel,
			KeyOpenAIEnabled:    cfg.OpenAIEnabled,
			KeyAnthropicEnabled: cfg.AnthropicEnabled,
		},
		logger: logger,
	}
}

// IsEnabled reports whether a flag is on. Unknown keys are off.
func (s *Service) IsEnabled(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values[key]
}

// Set toggles a flag at runtime
func (s *Service) Set(key string, enabled bool) {
	s.mu.Lock()
	s.values[key] = enabled
	s.mu.Unlock()

	s.logger.Info("feature flag updated",
		zap.String("flag", key),
		zap.Bool("enabled", enabled))
}

// Known reports whether a key is one the service has seen
func (s *Service) Known(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.values[key]
	return ok
}

// Snapshot returns a copy of all flags, sorted by key for stable output
func (s *Service) Snapshot() []Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Flag, 0, len(s.values))
	for key, enabled := range s.values {
		out = append(out, Flag{Key: key, Enabled: enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Flag is a single key/state pair
type Flag struct {
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
}
