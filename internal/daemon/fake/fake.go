// Package fake provides a scriptable, thread-safe in-memory daemon.Client
// for exercising the rules/planner/taskmachine/dispatcher stack without a
// real daemon connection, in the style of the teacher's inmemorystore: a
// small mutex-guarded struct standing in for an external collaborator.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/pexa-ARavichandran/batect/internal/daemon"
)

// Client is a fake daemon.Client. Every operation can be scripted to fail
// by setting the matching Err field, and every call is recorded in Calls
// for assertions.
type Client struct {
	mu sync.Mutex

	BuildErr         error
	PullErr          error
	CreateErr        error
	StartErr         error
	HealthResult     daemon.HealthResult
	HealthErr        error
	StopErr          error
	RemoveErr        error
	CreateNetworkErr error
	RemoveNetworkErr error
	RunAttachedExit  int
	RunAttachedErr   error
	ExecExit         int
	ExecErr          error

	nextHandle  int
	nextNetwork int
	Calls       []string
}

// New returns a fake.Client with health checks defaulting to healthy.
func New() *Client {
	return &Client{HealthResult: daemon.HealthResult{Healthy: true}}
}

func (c *Client) record(call string) {
	c.Calls = append(c.Calls, call)
}

func (c *Client) Build(ctx context.Context, req daemon.BuildRequest, onProgress daemon.ProgressFunc) (daemon.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("build:" + req.ContainerName)
	if onProgress != nil {
		onProgress("building " + req.ContainerName)
	}
	if c.BuildErr != nil {
		return "", c.BuildErr
	}
	return daemon.Image(req.ContainerName + ":built"), nil
}

func (c *Client) Pull(ctx context.Context, ref string, creds daemon.Credentials, onProgress daemon.ProgressFunc) (daemon.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("pull:" + ref)
	if onProgress != nil {
		onProgress("pulling " + ref)
	}
	if c.PullErr != nil {
		return "", c.PullErr
	}
	return daemon.Image(ref), nil
}

func (c *Client) CreateContainer(ctx context.Context, req daemon.CreateContainerRequest) (daemon.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("create:" + req.ContainerName)
	if c.CreateErr != nil {
		return "", c.CreateErr
	}
	c.nextHandle++
	return daemon.Handle(fmt.Sprintf("%s-handle-%d", req.ContainerName, c.nextHandle)), nil
}

func (c *Client) StartContainer(ctx context.Context, h daemon.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("start:" + string(h))
	return c.StartErr
}

func (c *Client) WaitForHealth(ctx context.Context, h daemon.Handle) (daemon.HealthResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("health:" + string(h))
	return c.HealthResult, c.HealthErr
}

func (c *Client) Stop(ctx context.Context, h daemon.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("stop:" + string(h))
	return c.StopErr
}

func (c *Client) Remove(ctx context.Context, h daemon.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("remove:" + string(h))
	return c.RemoveErr
}

func (c *Client) CreateNetwork(ctx context.Context) (daemon.Network, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("network:create")
	if c.CreateNetworkErr != nil {
		return "", c.CreateNetworkErr
	}
	c.nextNetwork++
	return daemon.Network(fmt.Sprintf("net-%d", c.nextNetwork)), nil
}

func (c *Client) RemoveNetwork(ctx context.Context, n daemon.Network) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("network:remove:" + string(n))
	return c.RemoveNetworkErr
}

func (c *Client) RunAttached(ctx context.Context, h daemon.Handle, io daemon.AttachIO) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("run_attached:" + string(h))
	return c.RunAttachedExit, c.RunAttachedErr
}

func (c *Client) Exec(ctx context.Context, h daemon.Handle, cmd []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("exec:" + string(h))
	return c.ExecExit, c.ExecErr
}

var _ daemon.Client = (*Client)(nil)
