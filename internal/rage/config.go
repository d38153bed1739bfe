package rage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/BTreeMap/RagePipe/internal/util"
)

// Default configuration values, applied for every key missing from the config file.
const (
	DefaultMaxRage             = 100.0
	DefaultDecayRate           = 0.5
	DefaultDecayIntervalSec    = 60
	DefaultProvocationMild     = 8.0
	DefaultProvocationModerate = 18.0
	DefaultProvocationSevere   = 35.0
	DefaultTeaseAmount         = 5.0
	DefaultAnnoyAmount         = 10.0
	DefaultLevel1Threshold     = 30.0
	DefaultLevel2Threshold     = 60.0
	DefaultLevel3Threshold     = 85.0
)

// Environment variables that override values from the config file.
const (
	EnvEnableDecay    = "RAGE_ENABLE_DECAY"
	EnvEnableCommands = "RAGE_ENABLE_COMMANDS"
	EnvDecayRate      = "RAGE_DECAY_RATE"
)

// Config is the process-wide rage configuration. It mirrors config.toml.
type Config struct {
	Rage     RageConfig    `toml:"rage" json:"rage"`
	Prompts  PromptConfig  `toml:"prompts" json:"prompts"`
	Features FeatureConfig `toml:"features" json:"features"`
}

// RageConfig holds bounds, decay and per-category increments.
type RageConfig struct {
	MaxRage             float64     `toml:"max_rage" json:"max_rage"`
	DecayRate           float64     `toml:"decay_rate" json:"decay_rate"`
	DecayInterval       int         `toml:"decay_interval" json:"decay_interval"` // seconds
	ProvocationMild     float64     `toml:"provocation_mild" json:"provocation_mild"`
	ProvocationModerate float64     `toml:"provocation_moderate" json:"provocation_moderate"`
	ProvocationSevere   float64     `toml:"provocation_severe" json:"provocation_severe"`
	TeaseAmount         float64     `toml:"tease_amount" json:"tease_amount"`
	AnnoyAmount         float64     `toml:"annoy_amount" json:"annoy_amount"`
	Levels              LevelConfig `toml:"levels" json:"levels"`
}

// LevelConfig holds the three ascending level thresholds.
type LevelConfig struct {
	Level1Threshold float64 `toml:"level1_threshold" json:"level1_threshold"`
	Level2Threshold float64 `toml:"level2_threshold" json:"level2_threshold"`
	Level3Threshold float64 `toml:"level3_threshold" json:"level3_threshold"`
}

// PromptConfig maps a level to the text injected into the reply prompt.
type PromptConfig struct {
	Level1 string `toml:"level1" json:"level1"`
	Level2 string `toml:"level2" json:"level2"`
	Level3 string `toml:"level3" json:"level3"`
}

// FeatureConfig holds the feature switches.
type FeatureConfig struct {
	EnableCommands bool `toml:"enable_commands" json:"enable_commands"`
	EnableDecay    bool `toml:"enable_decay" json:"enable_decay"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Rage: RageConfig{
			MaxRage:             DefaultMaxRage,
			DecayRate:           DefaultDecayRate,
			DecayInterval:       DefaultDecayIntervalSec,
			ProvocationMild:     DefaultProvocationMild,
			ProvocationModerate: DefaultProvocationModerate,
			ProvocationSevere:   DefaultProvocationSevere,
			TeaseAmount:         DefaultTeaseAmount,
			AnnoyAmount:         DefaultAnnoyAmount,
			Levels: LevelConfig{
				Level1Threshold: DefaultLevel1Threshold,
				Level2Threshold: DefaultLevel2Threshold,
				Level3Threshold: DefaultLevel3Threshold,
			},
		},
		Prompts: PromptConfig{
			Level1: "You are mildly irritated. Keep replies short and a little curt, but stay polite.",
			Level2: "You are clearly angry. Reply coldly and tersely, and make it obvious you are not amused.",
			Level3: "You are furious. Reply sharply, refuse to play along and tell the other person to back off.",
		},
		Features: FeatureConfig{
			EnableCommands: true,
			EnableDecay:    true,
		},
	}
}

// Interval returns the decay interval as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Rage.DecayInterval) * time.Second
}

// Prompt returns the configured prompt for level, or "" when none is set.
func (c Config) Prompt(level Level) string {
	switch level {
	case LevelAnnoyed:
		return c.Prompts.Level1
	case LevelAngry:
		return c.Prompts.Level2
	case LevelFurious:
		return c.Prompts.Level3
	default:
		return ""
	}
}

// Validate checks bounds and threshold ordering.
func (c Config) Validate() error {
	r := c.Rage
	l := r.Levels
	for name, v := range map[string]float64{
		"max_rage":             r.MaxRage,
		"decay_rate":           r.DecayRate,
		"provocation_mild":     r.ProvocationMild,
		"provocation_moderate": r.ProvocationModerate,
		"provocation_severe":   r.ProvocationSevere,
		"tease_amount":         r.TeaseAmount,
		"annoy_amount":         r.AnnoyAmount,
		"level1_threshold":     l.Level1Threshold,
		"level2_threshold":     l.Level2Threshold,
		"level3_threshold":     l.Level3Threshold,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a finite non-negative number, got %v", ErrInvalidConfig, name, v)
		}
	}
	if r.MaxRage <= 0 {
		return fmt.Errorf("%w: max_rage must be positive, got %v", ErrInvalidConfig, r.MaxRage)
	}
	if r.DecayInterval <= 0 {
		return fmt.Errorf("%w: decay_interval must be positive, got %d", ErrInvalidConfig, r.DecayInterval)
	}
	if !(l.Level1Threshold <= l.Level2Threshold && l.Level2Threshold <= l.Level3Threshold && l.Level3Threshold <= r.MaxRage) {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= level1 (%v) <= level2 (%v) <= level3 (%v) <= max_rage (%v)",
			ErrInvalidConfig, l.Level1Threshold, l.Level2Threshold, l.Level3Threshold, r.MaxRage)
	}
	return nil
}

// LoadConfig reads a TOML file on top of DefaultConfig, applies environment
// overrides and validates the result. An empty path or a missing file yields
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Warn("rage.LoadConfig: config file not found, using defaults", "path", path)
			cfg = DefaultConfig()
		case err != nil:
			return Config{}, fmt.Errorf("failed to parse rage config %s: %w", path, err)
		default:
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, 0, len(undecoded))
				for _, k := range undecoded {
					keys = append(keys, k.String())
				}
				slog.Warn("rage.LoadConfig: ignoring unknown keys", "path", path, "keys", strings.Join(keys, ","))
			}
			slog.Debug("rage.LoadConfig: config file decoded", "path", path)
		}
	}

	cfg.Features.EnableDecay = util.ParseBoolEnv(EnvEnableDecay, cfg.Features.EnableDecay)
	cfg.Features.EnableCommands = util.ParseBoolEnv(EnvEnableCommands, cfg.Features.EnableCommands)
	cfg.Rage.DecayRate = util.ParseFloatEnv(EnvDecayRate, cfg.Rage.DecayRate)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	slog.Debug("rage.LoadConfig: configuration loaded",
		"max_rage", cfg.Rage.MaxRage,
		"decay_rate", cfg.Rage.DecayRate,
		"decay_interval", cfg.Rage.DecayInterval,
		"enable_decay", cfg.Features.EnableDecay,
		"enable_commands", cfg.Features.EnableCommands)
	return cfg, nil
}
