package logging

import (
	"os"

	"github.com/gobuffalo/nulls"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Topic loggers. These are fallbacks for code without an injected logger.
// Components should prefer named loggers passed via their constructors.
var (
	// AppLogger is the main app logger.
	AppLogger = zap.NewNop()
	// MatchLogger is the logger for the match state store.
	MatchLogger = zap.NewNop()
	// CombatLogger is the logger for combat resolution.
	CombatLogger = zap.NewNop()
	// WSLogger is used for all stuff regarding websocket connections.
	WSLogger = zap.NewNop()
	// LobbyLogger is the logger for client reception and intent routing.
	LobbyLogger = zap.NewNop()
	// SyncLogger is the logger for the client synchronization service.
	SyncLogger = zap.NewNop()
	// EventPubLogger is the logger for MQTT event publishing.
	EventPubLogger = zap.NewNop()
	// WebServerLogger is used for all stuff regarding web servers.
	WebServerLogger = zap.NewNop()
)

// ApplyToGlobalLoggers sets up the topic loggers based on the given root
// logger.
func ApplyToGlobalLoggers(logger *zap.Logger) {
	AppLogger = logger.Named("app")
	MatchLogger = logger.Named("match")
	CombatLogger = logger.Named("combat")
	WSLogger = logger.Named("ws")
	LobbyLogger = logger.Named("lobby")
	SyncLogger = logger.Named("sync")
	EventPubLogger = logger.Named("eventpub")
	WebServerLogger = logger.Named("web-server")
}

// Config is the configuration for NewLogger.
type Config struct {
	// Level is the minimum level for stdout logging.
	Level zapcore.Level
	// File is the optional log file. Rotated via lumberjack.
	File nulls.String
	// FileMaxSizeMB is the maximum log file size in megabytes before rotation.
	FileMaxSizeMB int
	// FileKeepDays is the amount of days to keep rotated log files.
	FileKeepDays int
}

// NewLogger creates the root logger based on the given Config.
func NewLogger(config Config) *zap.Logger {
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= config.Level
		})))
	// Setup file logger.
	if config.File.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.File.String,
				MaxSize:  config.FileMaxSizeMB,
				MaxAge:   config.FileKeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= config.Level
			})))
	}
	// Combine.
	return zap.New(zapcore.NewTee(cores...))
}
