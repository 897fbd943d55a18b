package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultMediaTypes is the documented registration order used when
// media_types.enabled is left empty.
var DefaultMediaTypes = []string{"image", "audio", "video"}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterValidation("abspath", ValidateAbsPath)
	validate.RegisterValidation("localpath", ValidateLocalpath)
	validate.RegisterValidation("identifier", ValidateIdentifier)
	validate.RegisterValidation("pathpattern", ValidatePathPattern)
	validate.RegisterValidation("cronspec", ValidateCronSpec)

	if err := validate.Struct(c); err != nil {
		return err
	}

	return nil
}

// EnabledMediaTypes returns the configured media type registration order.
func (c *Config) EnabledMediaTypes() []string {
	if len(c.MediaTypes.Enabled) == 0 {
		return DefaultMediaTypes
	}

	return c.MediaTypes.Enabled
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("server.limits.submissions_per_minute", 30)
	v.SetDefault("uploads.tags_max_length", 255)
	v.SetDefault("processing.strategy", "local")
	v.SetDefault("processing.workers", 2)
	v.SetDefault("processing.gc.schedule", "@every 1h")
	v.SetDefault("processing.gc.max_age", 24*time.Hour)
	v.SetDefault("media_types.ffprobe", "ffprobe")
}

func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", file, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
