package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestSetup_Level(t *testing.T) {
	closer := Setup(Options{Level: "debug"})
	defer closer.Close()
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	closer = Setup(Options{Level: "nonsense"})
	defer closer.Close()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetup_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthcast.log")
	closer := Setup(Options{Level: "info", File: path})

	log.Info().Str("stage", "features").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"features"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestSetup_RotationOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthcast.log")
	closer := Setup(Options{Level: "info", File: path, MaxSizeMB: 7, MaxBackups: 2, MaxAgeDays: 3})
	defer closer.Close()

	rotator, ok := closer.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, path, rotator.Filename)
	assert.Equal(t, 7, rotator.MaxSize)
	assert.Equal(t, 2, rotator.MaxBackups)
	assert.Equal(t, 3, rotator.MaxAge)

	defaults := Setup(Options{Level: "info", File: path})
	defer defaults.Close()
	assert.Equal(t, 50, defaults.(*lumberjack.Logger).MaxSize)
}
