package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/anvil/internal/adapters/config"
	"go.trai.ch/anvil/internal/core/domain"
)

func writeProject(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Load(t *testing.T) {
	path := writeProject(t, t.TempDir(), "anvil.yaml", `
version: "1"
toolsVersion: "4.0"
properties:
  Configuration: Release
defaultTargets: Build;Test
targets:
  - name: Compile
    tasks:
      - cmd: ["gcc", "-o", "app", "main.c"]
  - name: Build
    dependsOn: Compile
    condition: "'$(Configuration)' == 'Release'"
    onError: Cleanup
    tasks:
      - name: Package
        cmd: ["tar", "cf", "app.tar", "app"]
        continueOnError: true
        params:
          LEVEL: "9"
        outputs:
          stdout: PackageLog
  - name: Test
    dependsOn: [Compile, Build]
  - name: Cleanup
`)

	project, err := config.NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, "4.0", project.ToolsVersion)
	assert.Equal(t, map[string]string{"Configuration": "Release"}, project.Properties)
	assert.Equal(t, []string{"Build", "Test"}, project.DefaultTargets)
	require.Len(t, project.Targets(), 4)

	build, ok := project.Target("Build")
	require.True(t, ok)
	assert.Equal(t, []string{"Compile"}, build.DependsOn)
	assert.Equal(t, []string{"Cleanup"}, build.OnError)
	assert.Equal(t, "'$(Configuration)' == 'Release'", build.Condition)

	require.Len(t, build.Tasks, 1)
	task := build.Tasks[0]
	assert.Equal(t, "Package", task.Name)
	assert.True(t, task.ContinueOnError)
	assert.Equal(t, []string{"tar", "cf", "app.tar", "app"}, task.Command)
	assert.Equal(t, map[string]string{"LEVEL": "9"}, task.Parameters)
	assert.Equal(t, map[string]string{"stdout": "PackageLog"}, task.OutputBindings)

	// Task name defaults to the command's binary.
	compile, ok := project.Target("Compile")
	require.True(t, ok)
	require.Len(t, compile.Tasks, 1)
	assert.Equal(t, "gcc", compile.Tasks[0].Name)

	test, ok := project.Target("Test")
	require.True(t, ok)
	assert.Equal(t, []string{"Compile", "Build"}, test.DependsOn)
}

func TestLoader_Load_ReferencesRelativeToProjectDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "services")
	require.NoError(t, os.MkdirAll(sub, 0o750))

	path := writeProject(t, sub, "anvil.yaml", `
references:
  - ../lib/anvil.yaml
  - api/anvil.yaml
targets:
  - name: Build
`)

	project, err := config.NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "lib", "anvil.yaml"),
		filepath.Join(sub, "api", "anvil.yaml"),
	}, project.References)
}

func TestLoader_Load_DuplicateTarget(t *testing.T) {
	path := writeProject(t, t.TempDir(), "anvil.yaml", `
targets:
  - name: Build
  - name: build
`)

	_, err := config.NewLoader().Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateTarget)
}

func TestLoader_Load_MissingTargetName(t *testing.T) {
	path := writeProject(t, t.TempDir(), "anvil.yaml", `
targets:
  - condition: "true"
`)

	_, err := config.NewLoader().Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing a name")
}

func TestLoader_Load_MissingFile(t *testing.T) {
	_, err := config.NewLoader().Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoader_Load_MalformedYAML(t *testing.T) {
	path := writeProject(t, t.TempDir(), "anvil.yaml", "targets: [\n")

	_, err := config.NewLoader().Load(path)
	require.Error(t, err)
}
