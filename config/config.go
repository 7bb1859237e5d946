// Package config reads the run settings from defaults, an optional config file and
// TILESIEVE_ environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "TILESIEVE"

// Keys, shared with the command line flags of the same name.
const (
	Workers        = "workers"
	BatchSize      = "batch-size"
	SampleFraction = "sample"
	LogLevel       = "log-level"
	Progress       = "progress"
	Stats          = "stats"
	Format         = "format"
)

type Config struct {
	Workers        int     `mapstructure:"workers" validate:"gte=1"`
	BatchSize      int     `mapstructure:"batch-size" validate:"gte=1"`
	SampleFraction float64 `mapstructure:"sample" validate:"gt=0,lte=1"`
	LogLevel       string  `mapstructure:"log-level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Progress       bool    `mapstructure:"progress"`
	// Stats is the comma separated list of inspect sections.
	Stats  string `mapstructure:"stats" validate:"required"`
	Format string `mapstructure:"format" validate:"oneof=text ndjson"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(Workers, runtime.NumCPU())
	v.SetDefault(BatchSize, 1000)
	v.SetDefault(SampleFraction, 0.1)
	v.SetDefault(LogLevel, "info")
	v.SetDefault(Progress, false)
	v.SetDefault(Stats, "summary,zooms,layers,geometry")
	v.SetDefault(Format, "text")
}

// New returns a viper instance with the defaults and the environment bound.
// Flags can be layered on top with Set before calling Decode.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates the settings of v.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.Format = strings.ToLower(c.Format)
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// Load is New followed by Decode.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}
