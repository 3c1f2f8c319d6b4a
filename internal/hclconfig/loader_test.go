package hclconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHCL(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ValidProjectAcrossMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	writeHCL(t, dir, "project.hcl", `
project "my-task" {
  task = "app"
}
`)
	writeHCL(t, dir, "containers.hcl", `
container "app" {
  image {
    build {
      directory = "."
    }
  }
  depends_on = ["db"]
  command    = ["./run.sh"]
}

container "db" {
  image {
    pull {
      reference = "postgres:16"
      policy    = "always"
    }
  }
  health_check {
    command  = ["pg_isready"]
    interval = "2s"
    timeout  = "1s"
    retries  = 5
  }
  env = {
    POSTGRES_PASSWORD = "secret"
  }
}
`)

	loader := NewLoader()
	project, err := loader.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "my-task", project.Name)
	assert.Equal(t, "app", project.TaskName)
	require.Contains(t, project.Containers, "app")
	require.Contains(t, project.Containers, "db")

	app := project.Containers["app"]
	assert.Equal(t, taskconfig.ImageSourceBuild, app.Image.Kind)
	assert.Equal(t, []string{"db"}, app.DependsOn)
	assert.Equal(t, "Dockerfile", app.Image.Dockerfile, "dockerfile must default when omitted")

	db := project.Containers["db"]
	assert.Equal(t, taskconfig.ImageSourcePull, db.Image.Kind)
	assert.Equal(t, taskconfig.PullAlways, db.Image.PullPolicy)
	require.NotNil(t, db.HealthCheck)
	assert.Equal(t, 2*time.Second, db.HealthCheck.Interval)
	assert.Equal(t, 5, db.HealthCheck.Retries)
	assert.Equal(t, "secret", db.Env["POSTGRES_PASSWORD"])
}

func TestLoad_MissingProjectBlockIsAnError(t *testing.T) {
	dir := t.TempDir()
	writeHCL(t, dir, "containers.hcl", `
container "app" {
  image {
    pull {
      reference = "alpine:3.19"
    }
  }
}
`)

	_, err := NewLoader().Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no project block found")
}

func TestLoad_DuplicateProjectBlockIsAnError(t *testing.T) {
	dir := t.TempDir()
	writeHCL(t, dir, "a.hcl", `project "one" { task = "app" }`)
	writeHCL(t, dir, "b.hcl", `project "two" { task = "app" }`)
	writeHCL(t, dir, "c.hcl", `
container "app" {
  image {
    pull { reference = "alpine:3.19" }
  }
}
`)

	_, err := NewLoader().Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one project block")
}

func TestLoad_UndeclaredTaskContainerFailsValidation(t *testing.T) {
	dir := t.TempDir()
	writeHCL(t, dir, "project.hcl", `project "proj" { task = "does-not-exist" }`)
	writeHCL(t, dir, "containers.hcl", `
container "app" {
  image {
    pull { reference = "alpine:3.19" }
  }
}
`)

	_, err := NewLoader().Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no container named "does-not-exist"`)
}

func TestLoad_DependsOnUndeclaredContainerFailsValidation(t *testing.T) {
	dir := t.TempDir()
	writeHCL(t, dir, "project.hcl", `project "proj" { task = "app" }`)
	writeHCL(t, dir, "containers.hcl", `
container "app" {
  image {
    pull { reference = "alpine:3.19" }
  }
  depends_on = ["ghost"]
}
`)

	_, err := NewLoader().Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `references undeclared container "ghost"`)
}

func TestLoad_ImageDeclaringBothBuildAndPullFails(t *testing.T) {
	dir := t.TempDir()
	writeHCL(t, dir, "project.hcl", `project "proj" { task = "app" }`)
	writeHCL(t, dir, "containers.hcl", `
container "app" {
  image {
    build { directory = "." }
    pull  { reference = "alpine:3.19" }
  }
}
`)

	_, err := NewLoader().Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one is allowed")
}

func TestLoad_EnvExpressionCanReferenceHostEnvironment(t *testing.T) {
	t.Setenv("BATECT_TEST_HOME", "/home/tester")

	dir := t.TempDir()
	writeHCL(t, dir, "project.hcl", `project "proj" { task = "app" }`)
	writeHCL(t, dir, "containers.hcl", `
container "app" {
  image {
    pull { reference = "alpine:3.19" }
  }
  env = {
    HOME = env.BATECT_TEST_HOME
  }
}
`)

	project, err := NewLoader().Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/home/tester", project.Containers["app"].Env["HOME"])
}

func TestLoad_SingleFilePath(t *testing.T) {
	dir := t.TempDir()
	path := writeHCL(t, dir, "project.hcl", `
project "proj" {
  task = "app"
}

container "app" {
  image {
    pull { reference = "alpine:3.19" }
  }
}
`)

	project, err := NewLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "proj", project.Name)
}
