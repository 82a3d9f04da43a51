package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lectern/internal/catalog"
	"lectern/internal/config"
	"lectern/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("NO_COLOR", "1")

	configPath := filepath.Join(base, "lectern.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if env != nil {
		flags = []string{"--config", env.configPath}
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// openStore opens a second handle on the CLI's catalog for assertions.
func (e *cliTestEnv) openStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(e.cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
scratch_dir = %q
storage_dir = %q
log_dir = %q
api_bind = %q

[openai]
api_key = %q

[storage]
signing_secret = %q
public_base_url = "http://127.0.0.1:7510/files"
`,
		cfg.Paths.DataDir,
		cfg.Paths.ScratchDir,
		cfg.Paths.StorageDir,
		cfg.Paths.LogDir,
		"127.0.0.1:7510",
		cfg.OpenAI.APIKey,
		cfg.Storage.SigningSecret,
	)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
