package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/dshills/retroide/internal/config"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/toolchain"
	"github.com/dshills/retroide/internal/transport"
	"github.com/dshills/retroide/internal/workerhost"
)

const fakeWorkerEnv = "RETROIDE_APP_FAKE_WORKER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeWorkerEnv); mode != "" {
		os.Exit(runFakeWorker(mode))
	}
	os.Exit(m.Run())
}

// runFakeWorker serves the real tool handler on stdin/stdout.
//
// Modes:
//
//	serve   serves until shutdown
//	crash   announces ready, then exits with status 2
func runFakeWorker(mode string) int {
	fmt.Fprintln(os.Stderr, "fake worker mode", mode)
	if mode == "crash" {
		ready, _ := protocol.NewEvent(protocol.EventReady, nil)
		_ = transport.New(os.Stdin, os.Stdout, nil).Send(ready)
		time.Sleep(20 * time.Millisecond)
		return 2
	}

	err := workerhost.Serve(context.Background(), os.Stdin, os.Stdout, toolchain.NewHandler())
	if err != nil {
		fmt.Fprintln(os.Stderr, "serve:", err)
		return 1
	}
	return 0
}

// fakeWorker returns a command factory re-executing the test binary.
func fakeWorker(mode string) func() *exec.Cmd {
	return func() *exec.Cmd {
		cmd := exec.Command(os.Args[0])
		cmd.Env = append(os.Environ(), fakeWorkerEnv+"="+mode)
		return cmd
	}
}

// testConfig returns a configuration with fast supervisor timing and a
// journal in a temporary directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Worker.Command = os.Args[0]
	cfg.Supervisor.ShutdownGrace = config.Duration(time.Second)
	cfg.Supervisor.InitialBackoff = config.Duration(10 * time.Millisecond)
	cfg.Supervisor.MaxBackoff = config.Duration(50 * time.Millisecond)
	cfg.Supervisor.HealthInterval = 0
	cfg.Router.DefaultTimeout = config.Duration(5 * time.Second)
	cfg.Logging.Level = "info"
	cfg.Logging.File = t.TempDir() + "/retroide.log"
	cfg.Journal.Path = t.TempDir() + "/journal.db"
	return cfg
}

func waitFor(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
