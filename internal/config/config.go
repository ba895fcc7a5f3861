// Package config loads gradewise settings from an optional YAML file and
// GRADEWISE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/grader"
	"github.com/abhisek/gradewise/internal/llm"
	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/recommend"
	"github.com/abhisek/gradewise/internal/review"
	"github.com/abhisek/gradewise/internal/spacedrep"
)

// EnvPrefix prefixes every environment override, e.g. GRADEWISE_SERVER_ADDR.
const EnvPrefix = "GRADEWISE"

type Config struct {
	// DB is the SQLite path; empty resolves to store.DefaultDBPath.
	DB         string           `mapstructure:"db"`
	Catalog    string           `mapstructure:"catalog"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Grader     GraderConfig     `mapstructure:"grader"`
	Attempt    AttemptConfig    `mapstructure:"attempt"`
	Mastery    MasteryConfig    `mapstructure:"mastery"`
	SpacedRep  SpacedRepConfig  `mapstructure:"spacedrep"`
	Review     ReviewConfig     `mapstructure:"review"`
	LLM        llm.Config       `mapstructure:"llm"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	PeerReview PeerReviewConfig `mapstructure:"peerreview"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Mode is the gin mode: release or debug.
	Mode string `mapstructure:"mode"`
	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS handling.
	CORSOrigins []string `mapstructure:"cors_origins"`
	// ExpirySweep is how often overdue attempts are closed.
	ExpirySweep time.Duration `mapstructure:"expiry_sweep"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	// File enables a rotating log file next to stderr output.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type GraderConfig struct {
	MaxEditDistance       int     `mapstructure:"max_edit_distance"`
	WrongSelectionPenalty float64 `mapstructure:"wrong_selection_penalty"`
}

type AttemptConfig struct {
	GradeConcurrency int `mapstructure:"grade_concurrency"`
}

type MasteryConfig struct {
	LearningRate      float64 `mapstructure:"learning_rate"`
	HintPenalty       float64 `mapstructure:"hint_penalty"`
	VelocitySmoothing float64 `mapstructure:"velocity_smoothing"`
	StepDownAfter     int     `mapstructure:"step_down_after"`
	StepUpAfter       int     `mapstructure:"step_up_after"`
	EasyMultiplier    float64 `mapstructure:"easy_multiplier"`
	MediumMultiplier  float64 `mapstructure:"medium_multiplier"`
	HardMultiplier    float64 `mapstructure:"hard_multiplier"`
	DecayPerWeek      float64 `mapstructure:"decay_per_week"`
	MasteredThreshold float64 `mapstructure:"mastered_threshold"`
}

type SpacedRepConfig struct {
	BaseInterval time.Duration `mapstructure:"base_interval"`
	GrowthFactor float64       `mapstructure:"growth_factor"`
	MaxInterval  time.Duration `mapstructure:"max_interval"`
}

type ReviewConfig struct {
	QueueSize   int     `mapstructure:"queue_size"`
	Workers     int     `mapstructure:"workers"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	// MinConfidence leaves lower-confidence AI grades for a human.
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type RedisConfig struct {
	// Addr enables event publishing when set.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

type PeerReviewConfig struct {
	// Seed fixes the allocator shuffle; 0 means random.
	Seed int64 `mapstructure:"seed"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	g := grader.DefaultConfig()
	m := mastery.DefaultConfig()
	s := spacedrep.DefaultConfig()
	r := review.DefaultConfig()
	ai := review.DefaultAIConfig()
	return &Config{
		Server: ServerConfig{Addr: ":8080", Mode: "release", ExpirySweep: time.Minute},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Grader:  GraderConfig{MaxEditDistance: g.MaxEditDistance, WrongSelectionPenalty: g.WrongSelectionPenalty},
		Attempt: AttemptConfig{GradeConcurrency: attempt.DefaultConfig().GradeConcurrency},
		Mastery: MasteryConfig{
			LearningRate:      m.LearningRate,
			HintPenalty:       m.HintPenalty,
			VelocitySmoothing: m.VelocitySmoothing,
			StepDownAfter:     m.StepDownAfter,
			StepUpAfter:       m.StepUpAfter,
			EasyMultiplier:    m.EasyMultiplier,
			MediumMultiplier:  m.MediumMultiplier,
			HardMultiplier:    m.HardMultiplier,
			DecayPerWeek:      m.DecayPerWeek,
			MasteredThreshold: m.MasteredThreshold,
		},
		SpacedRep: SpacedRepConfig{BaseInterval: s.BaseInterval, GrowthFactor: s.GrowthFactor, MaxInterval: s.MaxInterval},
		Review:    ReviewConfig{
			QueueSize:     r.QueueSize,
			Workers:       r.Workers,
			MaxTokens:     ai.MaxTokens,
			Temperature:   ai.Temperature,
			MinConfidence: ai.MinConfidence,
		},
		LLM:     llm.DefaultConfig(),
		Redis:   RedisConfig{Channel: "gradewise.events"},
		Tracing: TracingConfig{SampleRatio: 1, ServiceName: "gradewise"},
	}
}

// Load reads path (or gradewise.yaml from the working directory and
// $XDG_CONFIG_HOME/gradewise when path is empty) and applies environment
// overrides. A missing config file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gradewise")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "gradewise"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every default key so that AutomaticEnv can
// override keys the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("db", d.DB)
	v.SetDefault("catalog", d.Catalog)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.expiry_sweep", d.Server.ExpirySweep)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("grader.max_edit_distance", d.Grader.MaxEditDistance)
	v.SetDefault("grader.wrong_selection_penalty", d.Grader.WrongSelectionPenalty)
	v.SetDefault("attempt.grade_concurrency", d.Attempt.GradeConcurrency)

	v.SetDefault("mastery.learning_rate", d.Mastery.LearningRate)
	v.SetDefault("mastery.hint_penalty", d.Mastery.HintPenalty)
	v.SetDefault("mastery.velocity_smoothing", d.Mastery.VelocitySmoothing)
	v.SetDefault("mastery.step_down_after", d.Mastery.StepDownAfter)
	v.SetDefault("mastery.step_up_after", d.Mastery.StepUpAfter)
	v.SetDefault("mastery.easy_multiplier", d.Mastery.EasyMultiplier)
	v.SetDefault("mastery.medium_multiplier", d.Mastery.MediumMultiplier)
	v.SetDefault("mastery.hard_multiplier", d.Mastery.HardMultiplier)
	v.SetDefault("mastery.decay_per_week", d.Mastery.DecayPerWeek)
	v.SetDefault("mastery.mastered_threshold", d.Mastery.MasteredThreshold)

	v.SetDefault("spacedrep.base_interval", d.SpacedRep.BaseInterval)
	v.SetDefault("spacedrep.growth_factor", d.SpacedRep.GrowthFactor)
	v.SetDefault("spacedrep.max_interval", d.SpacedRep.MaxInterval)

	v.SetDefault("review.queue_size", d.Review.QueueSize)
	v.SetDefault("review.workers", d.Review.Workers)
	v.SetDefault("review.max_tokens", d.Review.MaxTokens)
	v.SetDefault("review.temperature", d.Review.Temperature)
	v.SetDefault("review.min_confidence", d.Review.MinConfidence)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", d.LLM.Anthropic.Model)
	v.SetDefault("llm.anthropic.base_url", "")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", d.LLM.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", d.LLM.Gemini.Model)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", d.LLM.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", "")
	v.SetDefault("llm.retry.max_attempts", d.LLM.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", d.LLM.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", d.LLM.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", d.LLM.Retry.Multiplier)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.channel", d.Redis.Channel)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("peerreview.seed", d.PeerReview.Seed)
}

// Validate rejects values outside the ranges the engine can work with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	m := c.Mastery
	check(m.LearningRate > 0 && m.LearningRate <= 1, "mastery.learning_rate must be in (0,1], got %v", m.LearningRate)
	check(m.VelocitySmoothing > 0 && m.VelocitySmoothing <= 1, "mastery.velocity_smoothing must be in (0,1], got %v", m.VelocitySmoothing)
	check(m.HintPenalty >= 0 && m.HintPenalty <= 1, "mastery.hint_penalty must be in [0,1], got %v", m.HintPenalty)
	check(m.StepDownAfter > 0 && m.StepUpAfter > 0, "mastery.step_down_after and step_up_after must be positive")
	check(m.EasyMultiplier > 0 && m.MediumMultiplier > 0 && m.HardMultiplier > 0, "mastery difficulty multipliers must be positive")
	check(m.DecayPerWeek >= 0 && m.DecayPerWeek < 1, "mastery.decay_per_week must be in [0,1), got %v", m.DecayPerWeek)
	check(m.MasteredThreshold > 0 && m.MasteredThreshold <= 100, "mastery.mastered_threshold must be in (0,100], got %v", m.MasteredThreshold)

	s := c.SpacedRep
	check(s.BaseInterval > 0, "spacedrep.base_interval must be positive")
	check(s.GrowthFactor > 1, "spacedrep.growth_factor must be greater than 1, got %v", s.GrowthFactor)
	check(s.MaxInterval == 0 || s.MaxInterval >= s.BaseInterval, "spacedrep.max_interval must be zero or not below base_interval")

	check(c.Grader.MaxEditDistance >= 0, "grader.max_edit_distance must not be negative")
	check(c.Grader.WrongSelectionPenalty <= 1, "grader.wrong_selection_penalty must be at most 1, got %v", c.Grader.WrongSelectionPenalty)
	check(c.Server.ExpirySweep > 0, "server.expiry_sweep must be positive")
	check(c.Attempt.GradeConcurrency > 0, "attempt.grade_concurrency must be positive")

	check(c.Review.MinConfidence >= 0 && c.Review.MinConfidence <= 1, "review.min_confidence must be in [0,1], got %v", c.Review.MinConfidence)
	check(c.Review.QueueSize >= 0 && c.Review.Workers > 0, "review.queue_size must not be negative and review.workers must be positive")
	check(c.Tracing.SampleRatio >= 0 && c.Tracing.SampleRatio <= 1, "tracing.sample_ratio must be in [0,1], got %v", c.Tracing.SampleRatio)

	switch c.Server.Mode {
	case "release", "debug", "test":
	default:
		errs = append(errs, fmt.Errorf("server.mode must be release or debug, got %q", c.Server.Mode))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GraderConfig converts the grader section.
func (c *Config) GraderConfig() grader.Config {
	return grader.Config{
		MaxEditDistance:       c.Grader.MaxEditDistance,
		WrongSelectionPenalty: c.Grader.WrongSelectionPenalty,
	}
}

func (c *Config) AttemptConfig() attempt.Config {
	return attempt.Config{GradeConcurrency: c.Attempt.GradeConcurrency}
}

func (c *Config) ScheduleConfig() spacedrep.Config {
	return spacedrep.Config{
		BaseInterval: c.SpacedRep.BaseInterval,
		GrowthFactor: c.SpacedRep.GrowthFactor,
		MaxInterval:  c.SpacedRep.MaxInterval,
	}
}

// MasteryConfig converts the mastery section, including its review schedule.
func (c *Config) MasteryConfig() mastery.Config {
	m := c.Mastery
	return mastery.Config{
		LearningRate:      m.LearningRate,
		HintPenalty:       m.HintPenalty,
		VelocitySmoothing: m.VelocitySmoothing,
		StepDownAfter:     m.StepDownAfter,
		StepUpAfter:       m.StepUpAfter,
		EasyMultiplier:    m.EasyMultiplier,
		MediumMultiplier:  m.MediumMultiplier,
		HardMultiplier:    m.HardMultiplier,
		DecayPerWeek:      m.DecayPerWeek,
		MasteredThreshold: m.MasteredThreshold,
		Schedule:          c.ScheduleConfig(),
	}
}

func (c *Config) RecommendConfig() recommend.Config {
	return recommend.Config{MasteredThreshold: c.Mastery.MasteredThreshold}
}

func (c *Config) ReviewConfig() review.Config {
	return review.Config{QueueSize: c.Review.QueueSize, Workers: c.Review.Workers}
}

func (c *Config) AIReviewConfig() review.AIConfig {
	return review.AIConfig{
		MaxTokens:     c.Review.MaxTokens,
		Temperature:   c.Review.Temperature,
		MinConfidence: c.Review.MinConfidence,
	}
}
