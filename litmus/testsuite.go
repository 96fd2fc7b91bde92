package litmus

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bornholm/remotedav/handler"
	"github.com/bornholm/remotedav/store"
)

// Suites lists the litmus test groups run against the handler.
var Suites = []string{"basic", "copymove", "props", "locks"}

// RunTestSuite serves the store over WebDAV and runs the litmus compliance
// groups against it from a container sharing the host network.
func RunTestSuite(t *testing.T, s store.Store, funcs ...handler.OptionFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	funcs = append([]handler.OptionFunc{handler.WithLogger(testLogger(t))}, funcs...)

	addr := serve(t, handler.New(s, funcs...))

	for _, suite := range Suites {
		t.Run(suite, func(t *testing.T) {
			exitCode, err := runLitmus(ctx, t, addr, suite)
			if err != nil {
				t.Fatalf("%+v", errors.WithStack(err))
			}

			if e, g := 0, exitCode; e != g {
				t.Errorf("litmus %s exit code: expected %v, got %v", suite, e, g)
			}
		})
	}
}

func serve(t *testing.T, h http.Handler) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not listen: %+v", errors.WithStack(err))
	}

	server := &http.Server{Handler: h}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("could not serve: %+v", errors.WithStack(err))
		}
	}()

	t.Cleanup(func() {
		if err := server.Close(); err != nil {
			t.Logf("could not close server: %+v", errors.WithStack(err))
		}
	})

	return listener.Addr().String()
}

func runLitmus(ctx context.Context, t *testing.T, addr string, suite string) (int, error) {
	consumer := &logConsumer{t}

	req := testcontainers.GenericContainerRequest{
		Logger: consumer,
		ContainerRequest: testcontainers.ContainerRequest{
			FromDockerfile: testcontainers.FromDockerfile{
				Context: dockerContext(),
			},
			HostConfigModifier: func(hc *container.HostConfig) {
				hc.NetworkMode = "host"
			},
			Env: map[string]string{
				"TESTS": suite,
			},
			Cmd:        []string{"/usr/local/bin/litmus", "-k", fmt.Sprintf("http://%s/", addr)},
			WaitingFor: wait.ForExit(),
			LogConsumerCfg: &testcontainers.LogConsumerConfig{
				Consumers: []testcontainers.LogConsumer{consumer},
			},
		},
		Started: true,
	}

	ctr, err := testcontainers.GenericContainer(ctx, req)
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("could not terminate container: %+v", errors.WithStack(err))
		}
	}()
	if err != nil {
		return -1, errors.Wrap(err, "could not start litmus container")
	}

	state, err := ctr.State(ctx)
	if err != nil {
		return -1, errors.WithStack(err)
	}

	return state.ExitCode, nil
}

// dockerContext returns the directory holding the litmus Dockerfile.
func dockerContext() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "misc", "litmus")
}

func testLogger(t *testing.T) handler.Logger {
	return func(r *http.Request, err error) {
		if err == nil || errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled) {
			return
		}

		t.Logf("%s %s: %v", r.Method, r.URL.Path, err)
	}
}

type logConsumer struct {
	t *testing.T
}

func (c *logConsumer) Printf(format string, v ...any) {
	c.t.Logf(format, v...)
}

func (c *logConsumer) Accept(l testcontainers.Log) {
	c.t.Log(strings.TrimSpace(string(l.Content)))
}
