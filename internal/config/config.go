// Package config loads service settings from defaults, an optional YAML file
// and WASTE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. WASTE_SERVER_PORT.
const EnvPrefix = "WASTE"

type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Model    ModelSettings    `mapstructure:"model"`
	Session  SessionSettings  `mapstructure:"session"`
	Workflow WorkflowSettings `mapstructure:"workflow"`
	History  HistorySettings  `mapstructure:"history"`
	Log      LogSettings      `mapstructure:"log"`
}

type ServerSettings struct {
	Port            string        `mapstructure:"port"`
	MaxUploadBytes  int64         `mapstructure:"maxuploadbytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdowntimeout"`
}

// ModelSettings points at the fixed model asset.
type ModelSettings struct {
	Path              string `mapstructure:"path"`
	MetadataPath      string `mapstructure:"metadatapath"`
	SharedLibraryPath string `mapstructure:"sharedlibrarypath"`
}

type SessionSettings struct {
	TTL      time.Duration `mapstructure:"ttl"`
	ImageTTL time.Duration `mapstructure:"imagettl"`
}

type WorkflowSettings struct {
	// RecoverOnFailure returns a failed load or identify to the phase it
	// started from. When false the phase stays in progress.
	RecoverOnFailure bool `mapstructure:"recoveronfailure"`
}

type HistorySettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Limit   int    `mapstructure:"limit"`
}

type LogSettings struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.maxuploadbytes", 10<<20)
	v.SetDefault("server.shutdowntimeout", 15*time.Second)

	v.SetDefault("model.path", "models/model.onnx")
	v.SetDefault("model.metadatapath", "models/model_metadata.json")
	v.SetDefault("model.sharedlibrarypath", "")

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.imagettl", time.Hour)

	v.SetDefault("workflow.recoveronfailure", true)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "history.db")
	v.SetDefault("history.limit", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads settings. An empty path searches the working directory for
// config.yaml; a missing file there is not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := Validate(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// Validate checks settings that would otherwise fail late at runtime.
func Validate(s *Settings) error {
	var errs []error
	if s.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if s.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.maxuploadbytes must be positive"))
	}
	if s.Model.Path == "" || s.Model.MetadataPath == "" {
		errs = append(errs, errors.New("model.path and model.metadatapath are required"))
	}
	if s.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if s.History.Enabled && s.History.Path == "" {
		errs = append(errs, errors.New("history.path is required when history is enabled"))
	}
	if s.History.Limit <= 0 {
		errs = append(errs, errors.New("history.limit must be positive"))
	}
	return errors.Join(errs...)
}
