package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/photon-run/photond/internal/config"
	"github.com/photon-run/photond/internal/envstore"
	"github.com/photon-run/photond/internal/photon"
	"github.com/photon-run/photond/internal/photonerr"
	"github.com/photon-run/photond/internal/protocol"
)

// Options bundles everything the Supervisor needs to bring a photon's
// daemon up: where to find it on disk, its source file, and the
// dependencies its constructor args may resolve to (§4.1/§4.4).
type Options struct {
	PhotonName string
	SourcePath string
	Paths      *config.Paths
	Config     *config.Config
	Deps       Dependencies
	Extractor  photon.Extractor
	Logger     *slog.Logger
}

// Supervisor owns the process lifetime of one photon daemon (§4.1):
// PID file, socket bind, the component graph, and the ordered
// shutdown sequence. It is the outermost component — every other
// piece (Instance Host, Method Runner, Lock Manager, Scheduler,
// Channel Bus, Webhook Router, Dispatcher) is constructed and wired
// here.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	envStore   *envstore.Store
	bus        *ChannelBus
	host       *InstanceHost
	locks      *LockManager
	scheduler  *Scheduler
	webhooks   *WebhookRouter
	runner     *MethodRunner
	dispatcher *Dispatcher
	idle       *IdleTracker
	srcWatcher *SourceWatcher

	listener net.Listener

	mu     sync.Mutex
	conns  map[string]*Connection
	connWG sync.WaitGroup

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func NewSupervisor(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		opts:       opts,
		logger:     logger,
		conns:      make(map[string]*Connection),
		shutdownCh: make(chan struct{}),
	}
}

// Run claims the PID file, binds the socket, constructs the component
// graph, loads the initial instance, then serves connections until ctx
// is cancelled or a client sends a shutdown frame. A fatal condition
// during startup (PID owned by a live process, socket bind failure,
// initial construction failure) is returned without side effects left
// behind — §4.1's three named fatal conditions.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.claimPID(); err != nil {
		return err
	}
	if err := s.bindSocket(); err != nil {
		s.abortStartup()
		return err
	}

	envPath, err := s.opts.Paths.EnvStorePath()
	if err != nil {
		s.abortStartup()
		return fmt.Errorf("resolve env store path: %w", err)
	}
	envStore, err := envstore.Load(envPath)
	if err != nil {
		s.abortStartup()
		return fmt.Errorf("load env store: %w", err)
	}
	s.envStore = envStore

	s.bus = NewChannelBus()
	s.locks = NewLockManager()
	s.host = NewInstanceHost(s.opts.PhotonName, s.opts.Paths, s.envStore, s.opts.Deps, s.opts.Extractor, s.bus, s.opts.Config.DebounceWriteDuration(), s.logger)

	if err := s.host.Load(ctx, s.opts.SourcePath); err != nil {
		s.locks.Close()
		s.abortStartup()
		return fmt.Errorf("load photon: %w", err)
	}

	s.runner = NewMethodRunner(s.host, s.locks, s.logger)

	var scheduler *Scheduler
	onFire := func(f Fire) {
		var args map[string]any
		if len(f.Args) > 0 {
			_ = json.Unmarshal(f.Args, &args)
		}
		res := s.runner.Invoke(context.Background(), Call{
			RequestID: "scheduler:" + f.JobID,
			Method:    f.Method,
			Args:      args,
			SessionID: "scheduler",
		})
		scheduler.MarkDegraded(f.JobID, photonerr.KindOf(res.Err) == photonerr.KindMethodMissing)
		if res.Err != nil {
			s.logger.Warn("scheduled invocation failed", "job", f.JobID, "method", f.Method, "error", res.Err)
		}
	}
	scheduler = NewScheduler(s.logger, onFire)
	s.scheduler = scheduler

	s.webhooks = NewWebhookRouter()
	if _, descriptor, _, _ := s.host.Current(); descriptor != nil {
		if err := s.webhooks.Rebuild(descriptor); err != nil {
			s.logger.Warn("initial webhook route build failed", "error", err)
		}
	}

	s.dispatcher = NewDispatcher(s.runner, s.locks, s.scheduler, s.bus, s.host, s.webhooks, DispatcherWorkers(), s.logger)
	s.dispatcher.OnShutdownRequest(s.beginShutdown)

	s.idle = NewIdleTracker(s.opts.Config.IdleTimeoutDuration())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.dispatcher.Start(runCtx)

	watcher, err := NewSourceWatcher(s.opts.SourcePath, s.opts.Config.DebounceWriteDuration(), func(reloadCtx context.Context) {
		if err := s.dispatcher.ReloadNow(reloadCtx, s.opts.SourcePath); err != nil {
			s.logger.Warn("automatic reload failed", "photon", s.opts.PhotonName, "error", err)
		}
	}, s.logger)
	if err != nil {
		s.logger.Warn("source file watcher unavailable, hot reload requires the reload command", "photon", s.opts.PhotonName, "error", err)
	} else {
		s.srcWatcher = watcher
		s.srcWatcher.Start(runCtx)
	}

	go s.acceptLoop(runCtx)
	go s.idleWatch(runCtx)

	s.logger.Info("photon daemon started", "photon", s.opts.PhotonName, "socket", s.opts.Paths.SocketPath())

	select {
	case <-ctx.Done():
	case <-s.shutdownCh:
	}

	s.shutdown()
	return nil
}

func (s *Supervisor) beginShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// abortStartup removes any side effects a partially-completed Run left
// behind, so a failed startup never leaves a stale socket or PID file
// for the next launch attempt to trip over.
func (s *Supervisor) abortStartup() {
	if s.listener != nil {
		s.listener.Close()
		os.Remove(s.opts.Paths.SocketPath())
	}
	os.Remove(s.opts.Paths.PIDFilePath())
}

func (s *Supervisor) claimPID() error {
	pidPath := s.opts.Paths.PIDFilePath()
	if pid, _, err := s.opts.Paths.ReadDaemonPID(); err == nil {
		if processAlive(pid) {
			return fmt.Errorf("daemon already running (pid %d, %s)", pid, pidPath)
		}
		s.logger.Warn("removing stale PID file", "pid", pid, "path", pidPath)
		os.Remove(pidPath)
	}
	if err := config.EnsureDir(filepath.Dir(pidPath), 0700); err != nil {
		return fmt.Errorf("create PID dir: %w", err)
	}
	return config.AtomicWriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0600)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func (s *Supervisor) bindSocket() error {
	socketPath := s.opts.Paths.SocketPath()
	if err := config.EnsureDir(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	if conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("another daemon is already listening on %s", socketPath)
	}
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = listener
	return nil
}

func (s *Supervisor) acceptLoop(ctx context.Context) {
	for {
		c, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept error", "error", err)
			continue
		}
		conn := NewConnection(c)
		s.mu.Lock()
		s.conns[conn.ID] = conn
		s.mu.Unlock()
		s.idle.ConnectionAdded()
		s.connWG.Add(1)
		go s.readLoop(ctx, conn)
	}
}

// readLoop implements the per-connection side of §4.2: a parse
// failure that yields malformed JSON counts toward the three-strikes
// close; a well-formed frame that fails Validate does not, since the
// connection itself is behaving fine. Its exit (via defer) is the
// signal shutdown waits on before it is safe to close the
// Dispatcher's intake queue — see the ordering note in shutdown.
func (s *Supervisor) readLoop(ctx context.Context, conn *Connection) {
	defer s.connWG.Done()
	defer s.cleanupConnection(conn)
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return
		}

		req, perr := protocol.ParseRequest(line)
		if perr != nil {
			if conn.NoteParseFailure() {
				return
			}
			conn.SendResponse(protocol.ErrorResult("unknown", "malformed JSON frame", string(photonerr.KindInvalidRequest)))
			continue
		}
		if req.ID == "" {
			if conn.NoteParseFailure() {
				return
			}
			conn.SendResponse(protocol.ErrorResult("unknown", "missing required field \"id\"", string(photonerr.KindInvalidRequest)))
			continue
		}
		conn.NoteParseSuccess()

		if verr := protocol.Validate(req); verr != nil {
			conn.SendResponse(protocol.ErrorResult(req.ID, verr.Error(), string(verr.Kind)))
			continue
		}

		if req.SessionID != "" {
			conn.SessionID = req.SessionID
		}

		s.dispatcher.Submit(ctx, conn, req)
	}
}

func (s *Supervisor) cleanupConnection(conn *Connection) {
	s.mu.Lock()
	delete(s.conns, conn.ID)
	s.mu.Unlock()

	s.bus.RemoveSubscriber(conn)
	if s.opts.Config.ReleaseLocksOnDisconnect {
		s.locks.ReleaseAllHeldBy(conn.SessionID)
	}
	conn.Close()
	s.idle.ConnectionRemoved()
}

func (s *Supervisor) idleWatch(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			if s.idle.IsIdle() {
				s.logger.Info("idle timeout reached, shutting down", "photon", s.opts.PhotonName)
				s.beginShutdown()
				return
			}
		}
	}
}

// shutdown runs the ordered sequence from §4.1: stop accepting, close
// every connection with a shutting-down error and wait for its reader
// loop to exit, only then stop the Dispatcher (closing its intake
// queue is only safe once nothing can still call Submit on it), then
// drain in-flight calls up to the configured deadline, retire the
// instance, and release the PID file and socket.
func (s *Supervisor) shutdown() {
	s.logger.Info("shutting down", "photon", s.opts.PhotonName)

	if s.listener != nil {
		s.listener.Close()
	}
	if s.srcWatcher != nil {
		s.srcWatcher.Close()
	}

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.SendResponse(protocol.ErrorResult("shutdown", "daemon is shutting down", string(photonerr.KindShuttingDown)))
		c.Close()
	}
	s.connWG.Wait() // every readLoop has returned; none can still Submit to the dispatcher

	drained := make(chan struct{})
	go func() {
		s.dispatcher.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(s.opts.Config.DrainDeadlineDuration()):
		s.logger.Warn("drain deadline exceeded, closing connections anyway")
	}

	s.scheduler.Close()
	s.locks.Close()

	if instance, _, _, _ := s.host.Current(); instance != nil {
		if hook, ok := instance.(photon.ShutdownHook); ok {
			hookCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			hook.OnShutdown(hookCtx)
			cancel()
		}
	}

	os.Remove(s.opts.Paths.SocketPath())
	os.Remove(s.opts.Paths.PIDFilePath())
}
