package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/inlock/fabric/pkg/config"
	"github.com/inlock/fabric/pkg/health"
	"github.com/inlock/fabric/pkg/log"
	"github.com/rs/zerolog"
)

const (
	// shutdownGrace is how long a child gets to exit after SIGTERM.
	shutdownGrace = 5 * time.Second

	// startStagger spaces out replica launches so they do not hammer the
	// disk at once.
	startStagger = 300 * time.Millisecond
)

// Supervisor launches and babysits a local fabric: one replica process per
// configured port plus the orchestrator, all children of this process.
type Supervisor struct {
	cfg    *config.Config
	binary string
	procs  []*process
	logger zerolog.Logger
}

type process struct {
	name string
	cmd  *exec.Cmd
}

// New creates a supervisor that re-executes the current binary for each
// child process.
func New(cfg *config.Config) (*Supervisor, error) {
	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating own binary: %w", err)
	}
	return &Supervisor{
		cfg:    cfg,
		binary: binary,
		logger: log.WithComponent("supervisor"),
	}, nil
}

// Run starts the fleet and blocks until ctx is cancelled, then shuts every
// child down with a SIGTERM, a grace period, and a kill.
func (s *Supervisor) Run(ctx context.Context) error {
	for i := 0; i < s.cfg.ReplicaCount; i++ {
		port := s.cfg.BasePort + i
		if portInUse(port) {
			s.logger.Warn().Int("port", port).Msg("port already in use, skipping replica")
			continue
		}

		storagePath := filepath.Join(s.cfg.DataDir, fmt.Sprintf("node_%d", i+1), "blockchain_dag.json")
		name := fmt.Sprintf("replica-%d", port)
		if err := s.start(name,
			"replica",
			"--port", strconv.Itoa(port),
			"--storage", storagePath,
		); err != nil {
			s.logger.Error().Err(err).Str("child", name).Msg("failed to start replica")
			continue
		}
		time.Sleep(startStagger)
	}
	if len(s.procs) == 0 {
		return fmt.Errorf("no replicas started")
	}

	s.waitForReplicas(ctx)

	if orchPortInUse(s.cfg.OrchestratorAddr) {
		s.logger.Warn().Str("addr", s.cfg.OrchestratorAddr).Msg("orchestrator address in use, skipping orchestrator")
	} else if err := s.start("orchestrator",
		"orchestrator",
		"--listen", s.cfg.OrchestratorAddr,
	); err != nil {
		s.logger.Error().Err(err).Msg("failed to start orchestrator")
	}

	s.logger.Info().Int("children", len(s.procs)).Msg("fabric running, press Ctrl-C to stop")
	<-ctx.Done()
	s.shutdown()
	return nil
}

// start launches one child and restreams its output through the supervisor
// logger.
func (s *Supervisor) start(name string, args ...string) error {
	cmd := exec.Command(s.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	go s.restream(name, stdout)
	go s.restream(name, stderr)

	s.procs = append(s.procs, &process{name: name, cmd: cmd})
	s.logger.Info().Str("child", name).Int("pid", cmd.Process.Pid).Msg("child started")
	return nil
}

func (s *Supervisor) restream(name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line != "" {
			fmt.Fprintf(os.Stdout, "[%s] %s\n", name, line)
		}
	}
}

// waitForReplicas polls replica health until every started replica answers
// or the budget runs out, so the orchestrator's first refresh sees a live
// fleet.
func (s *Supervisor) waitForReplicas(ctx context.Context) {
	deadline := time.Now().Add(15 * time.Second)
	for _, url := range s.cfg.Replicas {
		checker := health.NewHTTPChecker(url + "/health").WithTimeout(time.Second)
		for time.Now().Before(deadline) {
			if ctx.Err() != nil {
				return
			}
			if res := checker.Check(ctx); res.Healthy {
				break
			}
			time.Sleep(500 * time.Millisecond)
		}
	}
}

func (s *Supervisor) shutdown() {
	s.logger.Info().Msg("stopping fabric")

	for _, p := range s.procs {
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.logger.Warn().Err(err).Str("child", p.name).Msg("failed to signal child")
		}
	}

	for _, p := range s.procs {
		done := make(chan struct{})
		go func() {
			_ = p.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
			s.logger.Info().Str("child", p.name).Msg("child stopped")
		case <-time.After(shutdownGrace):
			s.logger.Warn().Str("child", p.name).Msg("child did not stop in time, killing")
			_ = p.cmd.Process.Kill()
			<-done
		}
	}
}

// portInUse reports whether something already listens on localhost:port.
func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func orchPortInUse(addr string) bool {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return portInUse(port)
}
