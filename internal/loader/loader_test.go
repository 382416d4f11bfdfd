package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerun/pagerun/pkg/schema"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "login.json", `{
  "name": "login",
  "variables": {"user": "alice", "attempts": 3},
  "steps": [
    {"name": "open", "action": "navigate", "value": "https://example.test"}
  ]
}`)

	wf, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "login", wf.Name)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, "navigate", wf.Steps[0].Action)
	assert.Equal(t, "alice", wf.Variables["user"].Text())
	attempts, ok := wf.Variables["attempts"].AsFloat()
	assert.True(t, ok)
	assert.Equal(t, float64(3), attempts)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "login.yaml", `
name: login
steps:
  - name: open
    action: navigate
    value: https://example.test
  - name: fill_user
    action: fill
    selector: "#user"
    value: "{{user}}"
`)

	wf, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "login", wf.Name)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, "#user", wf.Steps[1].Selector)
	assert.Equal(t, "{{user}}", wf.Steps[1].Value.Text())
}

func TestLoad_YmlExtension(t *testing.T) {
	path := writeFile(t, "w.yml", "name: w\nsteps:\n  - name: s\n    action: click\n")

	wf, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "w", wf.Name)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "w.toml", "name = \"w\"")

	_, err := Load(path)

	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeConfiguration, perr.Code)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))

	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeConfiguration, perr.Code)
}

func TestParseJSON_UnknownFieldRejected(t *testing.T) {
	_, err := ParseJSON([]byte(`{"name": "w", "stepps": []}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stepps")
}

func TestParseJSON_TrailingData(t *testing.T) {
	_, err := ParseJSON([]byte(`{"name": "w", "steps": []}{"extra": true}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestParseYAML_UnknownFieldRejected(t *testing.T) {
	_, err := ParseYAML([]byte("name: w\nstepps: []\n"))

	require.Error(t, err)
}

func TestParseYAML_Malformed(t *testing.T) {
	_, err := ParseYAML([]byte("name: [unclosed"))

	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeValidation, perr.Code)
}

func TestLoadVarsFile_JSON(t *testing.T) {
	path := writeFile(t, "vars.json", `{"user": "alice", "count": 2, "flags": ["a", "b"]}`)

	vars, err := LoadVarsFile(path)

	require.NoError(t, err)
	assert.Equal(t, "alice", vars["user"].Text())
	count, ok := vars["count"].AsFloat()
	assert.True(t, ok)
	assert.Equal(t, float64(2), count)
	assert.Equal(t, schema.KindList, vars["flags"].Kind())
}

func TestLoadVarsFile_YAML(t *testing.T) {
	path := writeFile(t, "vars.yaml", "user: bob\nheadless: true\n")

	vars, err := LoadVarsFile(path)

	require.NoError(t, err)
	assert.Equal(t, "bob", vars["user"].Text())
	assert.True(t, vars["headless"].Truthy())
}

func TestLoadVarsFile_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "vars.ini", "user=alice")

	_, err := LoadVarsFile(path)

	require.Error(t, err)
}

func TestExt(t *testing.T) {
	assert.Equal(t, "json", Ext("a/b/wf.JSON"))
	assert.Equal(t, "yaml", Ext("wf.yml"))
	assert.Equal(t, "yaml", Ext("wf.yaml"))
	assert.Equal(t, "unknown(.txt)", Ext("wf.txt"))
}
