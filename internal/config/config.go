package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "CLINIC_ASSISTANT_"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTPAddr      string `yaml:"http_addr"`
	DBDriver      string `yaml:"db_driver"`
	DBPath        string `yaml:"db_path"`
	AudioDir      string `yaml:"audio_dir"`
	LiveKitURL    string `yaml:"livekit_url"`
	RoomPrefix    string `yaml:"room_prefix"`
	AgentIdentity string `yaml:"agent_identity"`

	LLMModel     string  `yaml:"llm_model"`
	SummaryModel string  `yaml:"summary_model"`
	TTSModel     string  `yaml:"tts_model"`
	TTSVoice     string  `yaml:"tts_voice"`
	TTSSpeed     float64 `yaml:"tts_speed"`
	STTModel     string  `yaml:"stt_model"`

	PollInterval     string `yaml:"poll_interval"`
	PollErrorBackoff string `yaml:"poll_error_backoff"`
	ShutdownGrace    string `yaml:"shutdown_grace"`
	IdleTimeout      string `yaml:"idle_timeout"`
	GreetingDelay    string `yaml:"greeting_delay"`

	Slots []string `yaml:"slots"`

	AvatarID     string `yaml:"avatar_id"`
	AvatarAPIURL string `yaml:"avatar_api_url"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	LogLevel string `yaml:"log_level"`

	// Secrets: env vars only, never serialized to YAML.
	LiveKitAPIKey    string `yaml:"-"`
	LiveKitAPISecret string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`
	AnthropicAPIKey  string `yaml:"-"`
	GeminiAPIKey     string `yaml:"-"`
	DeepgramAPIKey   string `yaml:"-"`
	BeyAPIKey        string `yaml:"-"`
	DatabaseURL      string `yaml:"-"`
}

func defaults() Config {
	return Config{
		HTTPAddr:              ":8000",
		DBDriver:              DriverSQLite,
		DBPath:                "data/clinic.db",
		AudioDir:              "data/audio",
		RoomPrefix:            "medical-clinic-",
		AgentIdentity:         "clinic-assistant",
		LLMModel:              "gpt-4o-mini",
		SummaryModel:          "openai/gpt-4o-mini",
		TTSModel:              "tts-1",
		TTSVoice:              "alloy",
		TTSSpeed:              0.85,
		STTModel:              "nova-2",
		PollInterval:          "500ms",
		PollErrorBackoff:      "1s",
		ShutdownGrace:         "2s",
		IdleTimeout:           "5m",
		GreetingDelay:         "1s",
		Slots:                 []string{"10:00 AM", "2:00 PM", "4:00 PM"},
		AvatarID:              "f30d7eef-6e71-433f-938d-cecdd8c0b653",
		AvatarAPIURL:          "https://api.bey.dev",
		GoogleCredentialsFile: "./service-account.json",
		LogLevel:              "info",
	}
}

// Load reads path if it exists, then applies environment overrides and secrets.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func (c *Config) PollEvery() time.Duration {
	return parseDuration(c.PollInterval, 500*time.Millisecond)
}

func (c *Config) PollBackoff() time.Duration {
	return parseDuration(c.PollErrorBackoff, time.Second)
}

func (c *Config) Grace() time.Duration {
	return parseDuration(c.ShutdownGrace, 2*time.Second)
}

// Idle returns the caller silence after which a session is ended. Zero
// disables idle hang-up.
func (c *Config) Idle() time.Duration {
	if strings.TrimSpace(c.IdleTimeout) == "0" {
		return 0
	}
	return parseDuration(c.IdleTimeout, 5*time.Minute)
}

func (c *Config) Greeting() time.Duration {
	return parseDuration(c.GreetingDelay, time.Second)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	stringVars := map[string]*string{
		"HTTP_ADDR":               &cfg.HTTPAddr,
		"DB_DRIVER":               &cfg.DBDriver,
		"DB_PATH":                 &cfg.DBPath,
		"AUDIO_DIR":               &cfg.AudioDir,
		"LIVEKIT_URL":             &cfg.LiveKitURL,
		"ROOM_PREFIX":             &cfg.RoomPrefix,
		"AGENT_IDENTITY":          &cfg.AgentIdentity,
		"LLM_MODEL":               &cfg.LLMModel,
		"SUMMARY_MODEL":           &cfg.SummaryModel,
		"TTS_MODEL":               &cfg.TTSModel,
		"TTS_VOICE":               &cfg.TTSVoice,
		"STT_MODEL":               &cfg.STTModel,
		"POLL_INTERVAL":           &cfg.PollInterval,
		"POLL_ERROR_BACKOFF":      &cfg.PollErrorBackoff,
		"SHUTDOWN_GRACE":          &cfg.ShutdownGrace,
		"IDLE_TIMEOUT":            &cfg.IdleTimeout,
		"GREETING_DELAY":          &cfg.GreetingDelay,
		"AVATAR_ID":               &cfg.AvatarID,
		"AVATAR_API_URL":          &cfg.AvatarAPIURL,
		"GDRIVE_FOLDER_ID":        &cfg.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredentialsFile,
		"LOG_LEVEL":               &cfg.LogLevel,
	}
	for key, dst := range stringVars {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "TTS_SPEED"); v != "" {
		if speed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && speed > 0 {
			cfg.TTSSpeed = speed
		}
	}
	if v := os.Getenv(EnvPrefix + "SLOTS"); v != "" {
		if slots := parseSlots(v); len(slots) > 0 {
			cfg.Slots = slots
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.LiveKitAPIKey = os.Getenv(EnvPrefix + "LIVEKIT_API_KEY")
	cfg.LiveKitAPISecret = os.Getenv(EnvPrefix + "LIVEKIT_API_SECRET")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.BeyAPIKey = os.Getenv(EnvPrefix + "BEY_API_KEY")
	cfg.DatabaseURL = os.Getenv(EnvPrefix + "DATABASE_URL")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
		warnings = append(warnings, "LiveKit credentials not configured, token issuing and agent sessions are disabled. Set "+EnvPrefix+"LIVEKIT_API_KEY and "+EnvPrefix+"LIVEKIT_API_SECRET.")
	}
	if cfg.LiveKitURL == "" {
		warnings = append(warnings, "LiveKit URL not configured. Set "+EnvPrefix+"LIVEKIT_URL.")
	}
	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OpenAI API key not configured, the assistant cannot respond. Set "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured, caller speech is not transcribed. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if cfg.BeyAPIKey == "" {
		warnings = append(warnings, "Beyond Presence API key not configured, avatar requests will fail. Set "+EnvPrefix+"BEY_API_KEY.")
	}

	switch cfg.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			warnings = append(warnings, "db_driver is postgres but "+EnvPrefix+"DATABASE_URL is empty, falling back to sqlite.")
			cfg.DBDriver = DriverSQLite
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown db_driver %q, using sqlite.", cfg.DBDriver))
		cfg.DBDriver = DriverSQLite
	}

	durations := []struct {
		name string
		raw  string
	}{
		{"poll_interval", cfg.PollInterval},
		{"poll_error_backoff", cfg.PollErrorBackoff},
		{"shutdown_grace", cfg.ShutdownGrace},
		{"greeting_delay", cfg.GreetingDelay},
	}
	for _, d := range durations {
		if _, err := time.ParseDuration(d.raw); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, using default.", d.name, d.raw))
		}
	}
	if strings.TrimSpace(cfg.IdleTimeout) != "0" {
		if _, err := time.ParseDuration(cfg.IdleTimeout); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid idle_timeout %q, using default.", cfg.IdleTimeout))
		}
	}

	if len(cfg.Slots) == 0 {
		warnings = append(warnings, "No appointment slots configured, using defaults.")
		cfg.Slots = defaults().Slots
	}

	return warnings
}

func parseSlots(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		slot := strings.TrimSpace(part)
		if slot == "" {
			continue
		}
		if _, ok := seen[slot]; ok {
			continue
		}
		seen[slot] = struct{}{}
		result = append(result, slot)
	}

	return result
}
