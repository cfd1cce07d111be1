package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validTOML() string {
	return `
ip = "127.0.0.1"
port = 30303
block_period = 2000
request_time = 10000
peer_id = "abc"
ttl = 60000
store = "./data"

[genesis]
block_hash = "1111111111111111111111111111111111111111111111111111111111111111"
validator = ["0x1111111111111111111111111111111111111111"]
epoch_time = "2026-01-01T00:00:00Z"
proposer = "0x1111111111111111111111111111111111111111"
gas_used = 0
extra = ""
`
}

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, validTOML())
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.IP)
	require.Equal(t, uint16(30303), cfg.Port)
	require.Equal(t, 2000*1_000_000, int(cfg.BlockPeriod().Nanoseconds()))
	require.Len(t, cfg.Genesis.Validators, 1)
}

func TestLoadRejectsMissingGenesisProposer(t *testing.T) {
	bad := `
ip = "127.0.0.1"
port = 30303
block_period = 2000
request_time = 10000
store = "./data"

[genesis]
block_hash = "1111111111111111111111111111111111111111111111111111111111111111"
validator = ["0x1111111111111111111111111111111111111111"]
epoch_time = "2026-01-01T00:00:00Z"
`
	path := writeTemp(t, bad)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadEpochTime(t *testing.T) {
	bad := `
ip = "127.0.0.1"
port = 30303
block_period = 2000
request_time = 10000
store = "./data"

[genesis]
block_hash = "1111111111111111111111111111111111111111111111111111111111111111"
validator = ["0x1111111111111111111111111111111111111111"]
proposer = "0x1111111111111111111111111111111111111111"
epoch_time = "not-a-date"
`
	path := writeTemp(t, bad)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsZeroPort(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	require.Error(t, cfg.Validate())
}
