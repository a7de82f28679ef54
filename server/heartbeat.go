package server

import (
	"fmt"
	"os"
	"strings"
)

// heartbeat writes a small file containing this worker's PID so an
// external supervisor can tell a worker is alive; a fork's index goes into
// the file name (heartbeatPathForFork), not its content (spec §4.6 step 2).
type heartbeat struct {
	path string
}

func newHeartbeat(basePath string, forkIndex int) *heartbeat {
	if basePath == "" {
		return &heartbeat{}
	}
	path := basePath
	if forkIndex > 0 {
		path = heartbeatPathForFork(basePath, forkIndex)
	}
	return &heartbeat{path: path}
}

func heartbeatPathForFork(basePath string, forkIndex int) string {
	if dot := strings.LastIndex(basePath, "."); dot > strings.LastIndex(basePath, "/") {
		return fmt.Sprintf("%s.%d%s", basePath[:dot], forkIndex, basePath[dot:])
	}
	return fmt.Sprintf("%s.%d", basePath, forkIndex)
}

func (h *heartbeat) write() error {
	if h.path == "" {
		return nil
	}
	return os.WriteFile(h.path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func (h *heartbeat) remove() {
	if h.path == "" {
		return
	}
	_ = os.Remove(h.path)
}
