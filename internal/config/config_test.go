package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateBackend())
	require.Error(t, cfg.ValidateBridge(), "jwt key has no default")
	require.Equal(t, uint64(10), cfg.Client.InitialReputation)
}

func TestExample_MatchesDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, yaml.Unmarshal(Example(), cfg))
	require.NoError(t, cfg.Validate())
	require.Equal(t, Default().Backend.WriteBlock, cfg.Backend.WriteBlock)
	require.Equal(t, Default().Client, cfg.Client)
	require.Equal(t, Default().Bridge, cfg.Bridge)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	p := writeFile(t, "c.yaml", `
backend:
  addr: ":9000"
client:
  wallet_timeout: 30s
  fees:
    cast: 1
logging:
  level: debug
  format: console
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Backend.Addr)
	require.Equal(t, 30*time.Second, cfg.Client.WalletTimeout)
	require.Equal(t, uint64(1), cfg.Client.Fees.Cast)
	require.Equal(t, uint64(35000), cfg.Client.Fees.Identity)
	require.Equal(t, uint64(60000), cfg.Client.Fees.PayoutPool)
	require.Equal(t, "console", cfg.Logging.Format)
	// untouched sections keep defaults
	require.Equal(t, Default().Backend.DSN, cfg.Backend.DSN)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "backend: [\n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "level.yaml", "logging:\n  level: loud\n"))
	require.ErrorContains(t, err, "logging.level")

	_, err = Load(writeFile(t, "url.yaml", "client:\n  backend_url: localhost\n"))
	require.ErrorContains(t, err, "backend_url")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv(EnvPrefix+"DSN", "postgres://x")
	t.Setenv(EnvPrefix+"ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv(EnvPrefix+"INITIAL_REPUTATION", "25")
	t.Setenv(EnvPrefix+"TOKEN_TTL", "10m")
	t.Setenv(EnvPrefix+"BRIDGE_JWT_KEY", "0123456789abcdef")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Backend.Addr)
	require.Equal(t, "postgres://x", cfg.Backend.DSN)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Backend.AllowedOrigins)
	require.Equal(t, uint64(25), cfg.Client.InitialReputation)
	require.Equal(t, 10*time.Minute, cfg.Bridge.TokenTTL)
	require.NoError(t, cfg.ValidateBridge())
}

func TestLoad_EnvOverrideBadNumber(t *testing.T) {
	t.Setenv(EnvPrefix+"INITIAL_REPUTATION", "lots")
	_, err := Load("")
	require.ErrorContains(t, err, "INITIAL_REPUTATION")
}

func TestLoad_Dotenv(t *testing.T) {
	key := EnvPrefix + "NETWORK"
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	env := writeFile(t, ".env", key+"=mainnet\n")
	cfg, err := Load("", env, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	require.Equal(t, "mainnet", cfg.Client.Network)
}

func TestValidateBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend.WriteLimit = 0
	cfg.Backend.WriteWindow = 0
	require.NoError(t, cfg.ValidateBackend(), "throttling disabled")

	cfg.Backend.WriteLimit = 5
	require.Error(t, cfg.ValidateBackend())

	cfg.Backend.DSN = ""
	require.ErrorContains(t, cfg.ValidateBackend(), "dsn")
}
