// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// fakeAPI stubs the engine API calls under test. The embedded
// interface makes any call without an override panic, so a test only
// exercises what it scripted.
type fakeAPI struct {
	client.APIClient
	inspect func(id string) (types.ContainerJSON, error)
	logs    func(id string, options container.LogsOptions) (io.ReadCloser, error)
	pull    func(reference string) (io.ReadCloser, error)
}

func (f *fakeAPI) ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error) {
	return f.inspect(id)
}

func (f *fakeAPI) ContainerLogs(ctx context.Context, id string, options container.LogsOptions) (io.ReadCloser, error) {
	return f.logs(id, options)
}

func (f *fakeAPI) ImagePull(ctx context.Context, reference string, options types.ImagePullOptions) (io.ReadCloser, error) {
	return f.pull(reference)
}

func inspectResponse(state *types.ContainerState) types.ContainerJSON {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{State: state},
	}
}

func TestInspect(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		response types.ContainerJSON
		apiErr   error
		want     ContainerState
		wantErr  error
	}{
		{
			name: "running container",
			response: inspectResponse(&types.ContainerState{
				Running:   true,
				StartedAt: started.Format(time.RFC3339Nano),
			}),
			want: ContainerState{Running: true, StartedAt: started},
		},
		{
			name:     "exited container",
			response: inspectResponse(&types.ContainerState{ExitCode: 139}),
			want:     ContainerState{ExitCode: 139},
		},
		{
			name:    "missing container",
			apiErr:  errdefs.NotFound(errors.New("no such container")),
			wantErr: ErrNotFound,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			api := &fakeAPI{inspect: func(id string) (types.ContainerJSON, error) {
				if id != "c1" {
					t.Errorf("inspected container %q, want c1", id)
				}
				return test.response, test.apiErr
			}}
			engine := NewWithAPI(api, nil)

			got, err := engine.Inspect(context.Background(), "c1")
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("Inspect error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if got.Running != test.want.Running || got.ExitCode != test.want.ExitCode {
				t.Errorf("Inspect = %+v, want %+v", got, test.want)
			}
			if !got.StartedAt.Equal(test.want.StartedAt) {
				t.Errorf("StartedAt = %v, want %v", got.StartedAt, test.want.StartedAt)
			}
		})
	}
}

func TestInspectTransportErrorPassedThrough(t *testing.T) {
	api := &fakeAPI{inspect: func(id string) (types.ContainerJSON, error) {
		return types.ContainerJSON{}, errors.New("connection refused")
	}}
	engine := NewWithAPI(api, nil)

	_, err := engine.Inspect(context.Background(), "c1")
	if err == nil {
		t.Fatal("Inspect swallowed the transport error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("transport error reported as not found: %v", err)
	}
}

func TestLogsOptions(t *testing.T) {
	var captured container.LogsOptions
	api := &fakeAPI{logs: func(id string, options container.LogsOptions) (io.ReadCloser, error) {
		captured = options
		return io.NopCloser(strings.NewReader("log line\n")), nil
	}}
	engine := NewWithAPI(api, nil)

	reader, err := engine.Logs(context.Background(), "c1", 50, true)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	defer reader.Close()

	if !captured.ShowStdout || !captured.ShowStderr {
		t.Errorf("stream selection = stdout:%v stderr:%v, want both", captured.ShowStdout, captured.ShowStderr)
	}
	if !captured.Follow {
		t.Error("Follow not propagated")
	}
	if captured.Tail != "50" {
		t.Errorf("Tail = %q, want 50", captured.Tail)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("reading log stream: %v", err)
	}
	if string(data) != "log line\n" {
		t.Errorf("log stream = %q", data)
	}
}

func TestLogsNoTailWhenZero(t *testing.T) {
	var captured container.LogsOptions
	api := &fakeAPI{logs: func(id string, options container.LogsOptions) (io.ReadCloser, error) {
		captured = options
		return io.NopCloser(strings.NewReader("")), nil
	}}
	engine := NewWithAPI(api, nil)

	reader, err := engine.Logs(context.Background(), "c1", 0, false)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	reader.Close()

	if captured.Tail != "" {
		t.Errorf("Tail = %q, want unset for full history", captured.Tail)
	}
	if captured.Follow {
		t.Error("Follow set without being requested")
	}
}

func TestPull(t *testing.T) {
	api := &fakeAPI{pull: func(reference string) (io.ReadCloser, error) {
		if reference != "dillinger-sidecar:latest" {
			t.Errorf("pulled %q, want dillinger-sidecar:latest", reference)
		}
		return io.NopCloser(strings.NewReader(`{"status":"Pulling"}`)), nil
	}}
	engine := NewWithAPI(api, nil)

	reader, err := engine.Pull(context.Background(), "dillinger-sidecar:latest")
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	reader.Close()
}

func TestPullErrorNamesReference(t *testing.T) {
	api := &fakeAPI{pull: func(reference string) (io.ReadCloser, error) {
		return nil, errors.New("manifest unknown")
	}}
	engine := NewWithAPI(api, nil)

	_, err := engine.Pull(context.Background(), "dillinger-sidecar:missing")
	if err == nil {
		t.Fatal("Pull swallowed the engine error")
	}
	if !strings.Contains(err.Error(), "dillinger-sidecar:missing") {
		t.Errorf("error does not name the image: %v", err)
	}
}
