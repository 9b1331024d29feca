package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakenW/transhub/internal/uida"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "transhub.toml")
	cfg := `
[database]
path = "` + filepath.ToSlash(filepath.Join(dir, "cli.db")) + `"
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestDecodeJSONMapKeepsIntegers(t *testing.T) {
	m, err := decodeJSONMap(`{"id":"submit","count":3}`)
	require.NoError(t, err)

	// Integer key fields are valid input and must canonicalize.
	_, _, _, err = uida.Canonicalize(m)
	require.NoError(t, err)

	_, err = decodeJSONMap(`not json`)
	assert.Error(t, err)
}

func TestSubmitCommandAcceptsIntegerKeys(t *testing.T) {
	cfg := writeTestConfig(t)
	out := runCommand(t,
		"submit", "--config", cfg,
		"--namespace", "greetings",
		"--keys", `{"id":"submit","count":3}`,
		"--payload", `{"text":"Submit"}`,
		"--target", "de")
	assert.NotEmpty(t, out, "submit prints the content id")

	// The same keys round-trip through resolve (nothing published yet).
	out = runCommand(t,
		"resolve", "--config", cfg,
		"--namespace", "greetings",
		"--keys", `{"count":3,"id":"submit"}`,
		"--lang", "de")
	assert.Contains(t, out, "no published translation")
}
