package server

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/dermesser/brokerpc/internal/rpclog"
)

// harakiriExitCode is distinct from a normal exit so the orchestrator
// forwarding process exit codes can tell a watchdog fire from a clean
// shutdown or crash.
const harakiriExitCode = 77

// watchHarakiri arms a timer for timeout; if it fires before stop is
// closed, it logs every goroutine's stack and exits the process (spec
// §4.6: "the server logs per-thread stack traces and exits with a
// distinct code"). timeout <= 0 disables the watchdog.
func watchHarakiri(ctx context.Context, logger *rpclog.Logger, timeout time.Duration, stop <-chan struct{}) {
	if timeout <= 0 {
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-stop:
		return
	case <-timer.C:
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		numThreads, rssBytes := processDiagnostics()
		if logger != nil {
			logger.Errorf(ctx, "harakiri: request exceeded timeout, dumping stacks",
				"timeout", timeout, "num_threads", numThreads, "rss_bytes", rssBytes, "stacks", string(buf[:n]))
		}
		os.Exit(harakiriExitCode)
	}
}

// processDiagnostics reports this process's thread count and resident
// set size at the moment the watchdog fired, best-effort.
func processDiagnostics() (numThreads int32, rssBytes uint64) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0
	}
	if n, err := p.NumThreads(); err == nil {
		numThreads = n
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		rssBytes = mem.RSS
	}
	return numThreads, rssBytes
}
