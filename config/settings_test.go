package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gis.toml")

	const doc = `
origin = "deadbeef"
check_blocks = 16

[mining]
threads = 4
lower = true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "deadbeef", settings.Origin)
	require.Equal(t, uint64(16), settings.CheckBlocks)
	require.Equal(t, 4, settings.Mining.Threads)
	require.True(t, settings.Mining.Lower)

	// Fields absent from the document keep Defaults()'s values.
	require.Equal(t, "default.key", settings.KeyFile)
	require.Equal(t, "0.0.0.0:53", settings.Dns.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestOriginBytes(t *testing.T) {
	s := Settings{Origin: ""}
	b, err := s.OriginBytes()
	require.NoError(t, err)
	require.Nil(t, b)

	s = Settings{Origin: "deadbeef"}
	b, err = s.OriginBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	s = Settings{Origin: "not-hex"}
	_, err = s.OriginBytes()
	require.Error(t, err)
}

