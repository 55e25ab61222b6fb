package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "/root/tms", "sqlite", "/root/tms/database/tms.db")
	require.NoError(t, err)
	require.Equal(t, "Trust Manager System", cfg.Title)
	require.Equal(t, "http://0.0.0.0", cfg.HTTPAddr)
	require.Equal(t, 8443, cfg.HTTPPort)
	require.False(t, cfg.EnableMVP)
	require.Equal(t, NewClientsAllow, cfg.NewClients)
	require.False(t, cfg.EnableTestTenant)
}

func TestLoad_ReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	contents := "title = \"Custom TMS\"\nhttp_port = 9000\nenable_mvp = true\nnew_clients = \"on_approval\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tms.toml"), []byte(contents), 0o600))

	cfg, err := Load(dir, "/root/tms", "sqlite", "/root/tms/database/tms.db")
	require.NoError(t, err)
	require.Equal(t, "Custom TMS", cfg.Title)
	require.Equal(t, 9000, cfg.HTTPPort)
	require.True(t, cfg.EnableMVP)
	require.Equal(t, NewClientsOnApproval, cfg.NewClients)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tms.toml"), []byte("http_port = 9000\n"), 0o600))
	t.Setenv("TMS_HTTP_PORT", "7000")

	cfg, err := Load(dir, "/root/tms", "sqlite", "/root/tms/database/tms.db")
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.HTTPPort)
}

func TestEffectiveNewClients_MVPForcesDisallow(t *testing.T) {
	cfg := Config{EnableMVP: true, NewClients: NewClientsAllow}
	require.Equal(t, NewClientsDisallow, cfg.EffectiveNewClients())

	cfg = Config{EnableMVP: false, NewClients: NewClientsOnApproval}
	require.Equal(t, NewClientsOnApproval, cfg.EffectiveNewClients())
}

func TestValidate_RejectsBadNewClients(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tms.toml"), []byte("new_clients = \"maybe\"\n"), 0o600))
	_, err := Load(dir, "/root/tms", "sqlite", "/root/tms/database/tms.db")
	require.Error(t, err)
}

func TestValidate_RejectsUnqualifiedHTTPAddr(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tms.toml"), []byte("http_addr = \"0.0.0.0\"\n"), 0o600))
	_, err := Load(dir, "/root/tms", "sqlite", "/root/tms/database/tms.db")
	require.Error(t, err)
}

func TestListenAddr(t *testing.T) {
	cfg := Config{HTTPAddr: "http://0.0.0.0", HTTPPort: 8443}
	require.Equal(t, "0.0.0.0:8443", cfg.ListenAddr())
}

func TestRootDirFromEnv_EnvWinsOverFlag(t *testing.T) {
	t.Setenv("TMS_ROOT_DIR", "/from/env")
	require.Equal(t, "/from/env", RootDirFromEnv("/from/flag"))
}

func TestRootDirFromEnv_FlagUsedWhenEnvUnset(t *testing.T) {
	require.Equal(t, "/from/flag", RootDirFromEnv("/from/flag"))
}
