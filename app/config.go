package app

import (
	"strings"

	"github.com/gobuffalo/nulls"
	"github.com/lefinal/spikematch/errors"
	"github.com/lefinal/spikematch/match"
	"github.com/lefinal/spikematch/web_server"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config is the configuration needed in order to boot an App.
type Config struct {
	// ServeAddr is the address the app will listen for connections on.
	ServeAddr string `json:"serve_addr"`
	// MQTTAddr is the optional address of an MQTT broker for event publishing.
	MQTTAddr nulls.String `json:"mqtt_addr"`
	// Log is the logging configuration.
	Log LogConfig `json:"log"`
	// Match is the match configuration.
	Match match.Config `json:"match"`
}

// LogConfig is the logging part of Config.
type LogConfig struct {
	// Level is the minimum level for stdout logging.
	Level zapcore.Level `json:"level"`
	// File is the optional log file.
	File nulls.String `json:"file"`
	// FileMaxSizeMB is the maximum log file size in megabytes before rotation.
	FileMaxSizeMB int `json:"file_max_size_mb"`
	// FileKeepDays is the amount of days to keep rotated log files.
	FileKeepDays int `json:"file_keep_days"`
}

// LoadConfig loads the Config from the optional config file at the given path
// and the environment. Environment variables use the SPIKEMATCH_ prefix with
// underscores, like SPIKEMATCH_SERVE_ADDR.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("serve_addr", web_server.DefaultServeAddr)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_max_size_mb", 64)
	v.SetDefault("log.file_keep_days", 7)
	v.SetDefault("match.max_players", match.DefaultMaxPlayers)
	v.SetDefault("match.round_time", match.DefaultRoundTime)
	v.SetDefault("match.max_rounds", match.DefaultMaxRounds)
	v.SetEnvPrefix("spikematch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.NewInternalErrorFromErr(err, "read config file",
				errors.Details{"path": path})
		}
	}
	logLevel, err := zapcore.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return Config{}, errors.NewBadRequestError("unknown log level",
			errors.Details{"was": v.GetString("log.level")})
	}
	config := Config{
		ServeAddr: v.GetString("serve_addr"),
		Log: LogConfig{
			Level:         logLevel,
			FileMaxSizeMB: v.GetInt("log.file_max_size_mb"),
			FileKeepDays:  v.GetInt("log.file_keep_days"),
		},
		Match: match.Config{
			MaxPlayers: v.GetInt("match.max_players"),
			RoundTime:  v.GetInt("match.round_time"),
			MaxRounds:  v.GetInt("match.max_rounds"),
		},
	}
	if v.IsSet("mqtt_addr") && v.GetString("mqtt_addr") != "" {
		config.MQTTAddr = nulls.NewString(v.GetString("mqtt_addr"))
	}
	if v.IsSet("log.file") && v.GetString("log.file") != "" {
		config.Log.File = nulls.NewString(v.GetString("log.file"))
	}
	return config, nil
}

// ValidateConfig checks the given Config for being complete.
func ValidateConfig(config Config) error {
	if config.ServeAddr == "" {
		return errors.NewBadRequestError("missing serve addr", nil)
	}
	if config.Match.MaxPlayers <= 0 {
		return errors.NewBadRequestError("max players must be positive",
			errors.Details{"was": config.Match.MaxPlayers})
	}
	if config.Match.RoundTime <= 0 {
		return errors.NewBadRequestError("round time must be positive",
			errors.Details{"was": config.Match.RoundTime})
	}
	if config.Match.MaxRounds <= 0 {
		return errors.NewBadRequestError("max rounds must be positive",
			errors.Details{"was": config.Match.MaxRounds})
	}
	return nil
}
