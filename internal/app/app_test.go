package app

import (
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/pexa-ARavichandran/batect/internal/cancelctx"
	"github.com/pexa-ARavichandran/batect/internal/planner"
	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
	"github.com/pexa-ARavichandran/batect/internal/taskgraph"
	"github.com/pexa-ARavichandran/batect/internal/taskmachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	project *taskconfig.Project
	err     error
}

func (f fakeLoader) Load(path string) (*taskconfig.Project, error) {
	return f.project, f.err
}

func validProject() *taskconfig.Project {
	return &taskconfig.Project{
		Name:     "proj",
		TaskName: "app",
		Containers: map[string]*taskconfig.Container{
			"app": {
				Name:  "app",
				Image: taskconfig.ImageSource{Kind: taskconfig.ImageSourcePull, PullReference: "alpine:3.19"},
			},
		},
	}
}

func TestNewConfig_RequiresProjectPathAndDaemonURL(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.Error(t, err)

	_, err = NewConfig(Config{ProjectPath: "./proj"})
	assert.Error(t, err, "DaemonURL is required too")

	cfg, err := NewConfig(Config{ProjectPath: "./proj", DaemonURL: "ws://localhost:2375"})
	require.NoError(t, err)
	assert.Equal(t, "./proj", cfg.ProjectPath)
}

func TestNewApp_LoadsProjectSuccessfully(t *testing.T) {
	out := &SafeBuffer{}
	cfg, err := NewConfig(Config{ProjectPath: "./proj", DaemonURL: "ws://localhost:2375", LogLevel: "debug", LogFormat: "text"})
	require.NoError(t, err)

	a := NewApp(out, cfg, fakeLoader{project: validProject()})
	assert.NotNil(t, a.Logger())
	assert.Contains(t, out.String(), "project configuration loaded")
}

func TestNewApp_PanicsOnLoaderError(t *testing.T) {
	out := &SafeBuffer{}
	cfg, err := NewConfig(Config{ProjectPath: "./proj", DaemonURL: "ws://localhost:2375", LogLevel: "info", LogFormat: "text"})
	require.NoError(t, err)

	assert.Panics(t, func() {
		NewApp(out, cfg, fakeLoader{err: errors.New("no project block found")})
	})
}

func TestExitCodeError_Error(t *testing.T) {
	err := &ExitCodeError{Code: 42}
	assert.Equal(t, "task exited with code 42", err.Error())
}

func TestStatusServer_HealthzAndEventsEndpoints(t *testing.T) {
	out := &SafeBuffer{}
	cfg, err := NewConfig(Config{ProjectPath: "./proj", DaemonURL: "ws://localhost:2375", LogLevel: "info", LogFormat: "text"})
	require.NoError(t, err)
	a := NewApp(out, cfg, fakeLoader{project: validProject()})

	g, err := taskgraph.Build(validProject())
	require.NoError(t, err)
	token := cancelctx.New(a.baseContext())
	machine := taskmachine.New(a.baseContext(), g, planner.CleanupAlways, token)

	port := 18080
	go a.startStatusServer(port, machine)
	defer func() { _ = a.closeStatusServer() }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	eventsResp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/events")
	require.NoError(t, err)
	defer eventsResp.Body.Close()
	assert.Equal(t, http.StatusOK, eventsResp.StatusCode)
	assert.Equal(t, "application/json", eventsResp.Header.Get("Content-Type"))
}

func TestCloseStatusServer_NoopWhenNeverStarted(t *testing.T) {
	out := &SafeBuffer{}
	cfg, err := NewConfig(Config{ProjectPath: "./proj", DaemonURL: "ws://localhost:2375", LogLevel: "info", LogFormat: "text"})
	require.NoError(t, err)
	a := NewApp(out, cfg, fakeLoader{project: validProject()})

	assert.NoError(t, a.closeStatusServer())
}
