// Package config resolves workout-runner settings from flags, the
// environment and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

const EnvPrefix = "WORKOUT_RUNNER"

type Config struct {
	Workout     string `mapstructure:"workout"`
	Environment string `mapstructure:"environment"`
	Equipment   string `mapstructure:"equipment"`
	Countdown   int    `mapstructure:"countdown"`
	History     bool   `mapstructure:"history"`

	Replay    ReplayConfig    `mapstructure:"replay"`
	HeartRate HeartRateConfig `mapstructure:"hr"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
}

type ReplayConfig struct {
	File  string  `mapstructure:"file"`
	Speed float64 `mapstructure:"speed"`
}

type HeartRateConfig struct {
	BLE         bool   `mapstructure:"ble"`
	Address     string `mapstructure:"address"`
	BindingFile string `mapstructure:"binding_file"`
}

type StorageConfig struct {
	DB         string `mapstructure:"db"`
	ParquetDir string `mapstructure:"parquet_dir"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type FeedbackConfig struct {
	Voice          bool   `mapstructure:"voice"`
	Vibration      bool   `mapstructure:"vibration"`
	MusicInterrupt bool   `mapstructure:"music_interrupt"`
	VoiceCommand   string `mapstructure:"voice_command"`
}

// DataDir is ~/.workout-runner.
func DataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".workout-runner")
}

// flag name -> viper key
var flagKeys = map[string]string{
	"workout":         "workout",
	"environment":     "environment",
	"equipment":       "equipment",
	"countdown":       "countdown",
	"history":         "history",
	"replay":          "replay.file",
	"replay-speed":    "replay.speed",
	"hr-ble":          "hr.ble",
	"hr-address":      "hr.address",
	"hr-binding-file": "hr.binding_file",
	"db":              "storage.db",
	"parquet-out":     "storage.parquet_dir",
	"log-file":        "log.file",
	"log-max-size-mb": "log.max_size_mb",
	"log-max-backups": "log.max_backups",
	"log-max-age":     "log.max_age_days",
	"voice":           "feedback.voice",
	"vibration":       "feedback.vibration",
	"music-interrupt": "feedback.music_interrupt",
	"voice-command":   "feedback.voice_command",
}

func newFlagSet() *pflag.FlagSet {
	dataDir := DataDir()
	fs := pflag.NewFlagSet("workout-runner", pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	fs.StringP("workout", "w", "easy-30", "built-in workout name or path to a workout YAML file")
	fs.StringP("environment", "e", string(workout.Outdoor), "indoor or outdoor")
	fs.String("equipment", "", "equipment used indoors, e.g. treadmill")
	fs.Int("countdown", 3, "seconds of countdown before the session starts (0 starts immediately)")
	fs.Bool("history", false, "list saved sessions and exit")
	fs.String("replay", "", "FIT activity to replay as the GPS and heart rate source")
	fs.Float64("replay-speed", 1, "replay speed factor")
	fs.Bool("hr-ble", false, "connect to a Bluetooth heart rate sensor")
	fs.String("hr-address", "", "Bluetooth address of the heart rate sensor to bind")
	fs.String("hr-binding-file", filepath.Join(dataDir, "hr_binding.json"), "where the heart rate binding is remembered")
	fs.String("db", filepath.Join(dataDir, "sessions.db"), "SQLite session database")
	fs.String("parquet-out", "", "directory for Parquet sample exports (disabled when empty)")
	fs.String("log-file", filepath.Join(dataDir, "workout-runner.log"), "log file")
	fs.Int("log-max-size-mb", 10, "rotate the log file after this many megabytes")
	fs.Int("log-max-backups", 5, "rotated log files to keep")
	fs.Int("log-max-age", 28, "days to keep rotated log files")
	fs.Bool("voice", true, "spoken prompts")
	fs.Bool("vibration", true, "haptic pulses (terminal bell)")
	fs.Bool("music-interrupt", false, "interrupt music for prompts")
	fs.String("voice-command", "", "text-to-speech command, e.g. espeak (prompts are logged when empty)")
	return fs
}

// Load parses args (without the program name) and returns the validated config.
// It returns pflag.ErrHelp when help was requested.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}

var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	if !workout.Environment(c.Environment).Valid() {
		return fmt.Errorf("%w: environment must be indoor or outdoor, got %q", ErrInvalid, c.Environment)
	}
	if c.Workout == "" {
		return fmt.Errorf("%w: workout is required", ErrInvalid)
	}
	if c.Countdown < 0 {
		return fmt.Errorf("%w: countdown must not be negative", ErrInvalid)
	}
	if c.Replay.Speed <= 0 {
		return fmt.Errorf("%w: replay.speed must be positive", ErrInvalid)
	}
	if c.Replay.File != "" && c.HeartRate.BLE {
		return fmt.Errorf("%w: replay and hr-ble are mutually exclusive", ErrInvalid)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("%w: log.max_size_mb must be positive", ErrInvalid)
	}
	if c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("%w: log retention must not be negative", ErrInvalid)
	}
	if c.Storage.DB == "" {
		return fmt.Errorf("%w: storage.db is required", ErrInvalid)
	}
	return nil
}

// EnvironmentValue returns the typed environment.
func (c *Config) EnvironmentValue() workout.Environment {
	return workout.Environment(c.Environment)
}
