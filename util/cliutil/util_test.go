package cliutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert := assert.New(t)

	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		assert.NoError(err, in)
		assert.Equal(want, got, in)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(err)
}

func TestSetupDatabaseSqliteMemory(t *testing.T) {
	assert := assert.New(t)

	db, err := SetupDatabase("sqlite://:memory:", 10)
	assert.NoError(err)
	assert.NotNil(db)

	_, err = SetupDatabase("mysql://localhost/warden", 10)
	assert.Error(err)
}
