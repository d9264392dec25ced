package app

import (
	"testing"

	"github.com/lefinal/spikematch/match"
	"github.com/lefinal/spikematch/web_server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err, "loading without a config file should use defaults")
	assert.Equal(t, web_server.DefaultServeAddr, config.ServeAddr)
	assert.Equal(t, zapcore.InfoLevel, config.Log.Level)
	assert.False(t, config.MQTTAddr.Valid, "mqtt should be disabled by default")
	assert.False(t, config.Log.File.Valid, "file logging should be disabled by default")
	assert.Equal(t, match.DefaultMaxPlayers, config.Match.MaxPlayers)
	assert.Equal(t, match.DefaultRoundTime, config.Match.RoundTime)
	assert.Equal(t, match.DefaultMaxRounds, config.Match.MaxRounds)
	assert.NoError(t, ValidateConfig(config), "default config should be valid")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.json")
	require.Error(t, err, "a missing config file should be reported")
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		ServeAddr: ":8080",
		Match: match.Config{
			MaxPlayers: 10,
			RoundTime:  100,
			MaxRounds:  13,
		},
	}
	require.NoError(t, ValidateConfig(valid))

	noAddr := valid
	noAddr.ServeAddr = ""
	assert.Error(t, ValidateConfig(noAddr), "missing serve addr should be rejected")

	badPlayers := valid
	badPlayers.Match.MaxPlayers = 0
	assert.Error(t, ValidateConfig(badPlayers), "zero max players should be rejected")

	badRoundTime := valid
	badRoundTime.Match.RoundTime = -1
	assert.Error(t, ValidateConfig(badRoundTime), "negative round time should be rejected")

	badRounds := valid
	badRounds.Match.MaxRounds = 0
	assert.Error(t, ValidateConfig(badRounds), "zero max rounds should be rejected")
}
