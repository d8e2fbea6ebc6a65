package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "import", "template", "export", "migrate", "gmail-fetch"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "talent-admin", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "user", "map", "dry-run"} {
		assert.NotNil(t, importCmd.Flags().Lookup(name), "import command should have --%s flag", name)
	}
}

func TestGmailCommand_Flags(t *testing.T) {
	require.NotNil(t, gmailCmd.Flags().Lookup("subject"))
	assert.NotNil(t, gmailCmd.Flags().Lookup("user"))
	assert.NotNil(t, gmailCmd.Flags().Lookup("clean"))
}

// isolate points the store and upload dir at a temp dir
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TALENT_STORE_DRIVER", "sqlite")
	t.Setenv("TALENT_STORE_DATABASE_URL", filepath.Join(dir, "talent.db"))
	t.Setenv("TALENT_UPLOAD_DIR", filepath.Join(dir, "uploads"))
	t.Setenv("TALENT_AI_PROVIDER", "none")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTemplateCommand(t *testing.T) {
	dir := isolate(t)
	out, err := execute(t, "template", "--out", filepath.Join(dir, "tpl"))
	require.NoError(t, err)
	assert.Contains(t, out, "tpl.xlsx")
	_, err = os.Stat(filepath.Join(dir, "tpl.xlsx"))
	assert.NoError(t, err)
}

func TestImportCommand(t *testing.T) {
	dir := isolate(t)
	csvPath := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"Full Name,Email ID,Mobile,Where,Stack,Years\n"+
			"Jane Doe,jane@x.com,555-1111,Nairobi,Go,5\n"+
			",anon@x.com,555-2222,Mombasa,Rust,2\n"), 0o644))

	out, err := execute(t, "import", "--file", csvPath, "--user", "u1", "--dry-run=false")
	require.Error(t, err, "required fields are unmapped without overrides")
	assert.Contains(t, out, "Required fields are not mapped")

	out, err = execute(t, "import", "--file", csvPath, "--user", "u1",
		"--map", "Mobile=Phone,Where=Location,Stack=Tech,Years=Number of Experience")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully processed 1 of 2 records, with 1 errors")
	assert.Contains(t, out, "Name field is required but missing")

	out, err = execute(t, "export", "--user", "u1", "--out", filepath.Join(dir, "all.xlsx"))
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 candidates")
}
