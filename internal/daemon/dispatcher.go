package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/photon-run/photond/internal/photonerr"
	"github.com/photon-run/photond/internal/protocol"
)

// dispatchItem is one parsed frame waiting on the shared queue,
// paired with the connection it arrived on.
type dispatchItem struct {
	conn *Connection
	req  *protocol.Request
}

// Dispatcher is the single consumer point for every inbound frame
// from every connection (§4.3). I/O goroutines only ever push onto
// the shared queue; a fixed pool of workers pops and routes by
// request type to the subsystem that owns it. This decouples
// connection-handling concurrency from user-code concurrency — a slow
// method invocation never blocks other connections from being read.
type Dispatcher struct {
	runner    *MethodRunner
	locks     *LockManager
	scheduler *Scheduler
	bus       *ChannelBus
	host      *InstanceHost
	webhooks  *WebhookRouter
	logger    *slog.Logger

	onShutdownRequest func()

	queue   chan dispatchItem
	workers int
	wg      sync.WaitGroup
}

// DispatcherWorkers returns the default pool size: one worker per
// CPU core (§4.3).
func DispatcherWorkers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

func NewDispatcher(runner *MethodRunner, locks *LockManager, scheduler *Scheduler, bus *ChannelBus, host *InstanceHost, webhooks *WebhookRouter, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DispatcherWorkers()
	}
	return &Dispatcher{
		runner:    runner,
		locks:     locks,
		scheduler: scheduler,
		bus:       bus,
		host:      host,
		webhooks:  webhooks,
		workers:   workers,
		logger:    logger,
		queue:     make(chan dispatchItem, 256),
	}
}

// OnShutdownRequest registers the callback invoked when a client sends
// a "shutdown" frame. The Supervisor wires its own shutdown sequence
// here; the Dispatcher itself owns no lifecycle decisions.
func (d *Dispatcher) OnShutdownRequest(fn func()) {
	d.onShutdownRequest = fn
}

// Start launches the worker pool. Workers exit once Stop has closed
// the queue and it has drained; cancelling ctx does not stop them.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop cancels intake and waits for in-flight handling to finish.
// Callers should close the queue only after every connection's reader
// loop has exited, to avoid a send on a closed channel.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for item := range d.queue {
		d.handle(ctx, item.conn, item.req)
	}
}

// Submit enqueues a parsed, already-validated frame. It never blocks
// indefinitely on a full queue past ctx's lifetime.
func (d *Dispatcher) Submit(ctx context.Context, conn *Connection, req *protocol.Request) {
	select {
	case d.queue <- dispatchItem{conn: conn, req: req}:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) handle(ctx context.Context, conn *Connection, req *protocol.Request) {
	switch req.Type {
	case "ping":
		conn.SendResponse(protocol.Pong(req.ID))
	case "shutdown":
		conn.SendResponse(protocol.Result(req.ID, json.RawMessage("true")))
		if d.onShutdownRequest != nil {
			d.onShutdownRequest()
		}
	case "command":
		d.handleCommand(ctx, conn, req)
	case "prompt_response":
		d.handlePromptResponse(conn, req)
	case "subscribe":
		count := d.bus.Subscribe(conn, req.Channel)
		conn.SendResponse(protocol.Subscribed(req.ID, req.Channel, count))
	case "unsubscribe":
		d.bus.Unsubscribe(conn, req.Channel)
		conn.SendResponse(protocol.Unsubscribed(req.ID))
	case "publish":
		delivered := d.bus.Publish(conn, req.Channel, req.Message)
		conn.SendResponse(protocol.Published(req.ID, delivered))
	case "lock":
		d.handleLock(ctx, conn, req)
	case "unlock":
		released, reason := d.locks.Release(req.LockName, req.SessionID)
		conn.SendResponse(protocol.Released(req.ID, released, reason))
	case "list_locks":
		d.handleListLocks(conn, req)
	case "schedule":
		if err := d.scheduler.Schedule(req.JobID, req.Method, req.Cron, req.Args); err != nil {
			d.sendErr(conn, req.ID, photonerr.InvalidRequest(err.Error()))
			return
		}
		conn.SendResponse(protocol.Scheduled(req.ID))
	case "unschedule":
		conn.SendResponse(protocol.Unscheduled(req.ID, d.scheduler.Unschedule(req.JobID)))
	case "list_jobs":
		d.handleListJobs(conn, req)
	case "reload":
		d.handleReload(ctx, conn, req)
	case "list_webhooks":
		conn.SendResponse(protocol.WebhooksList(req.ID, d.webhooks.List()))
	default:
		d.sendErr(conn, req.ID, photonerr.InvalidRequest("unhandled request type "+req.Type))
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, conn *Connection, req *protocol.Request) {
	var args map[string]any
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			d.sendErr(conn, req.ID, photonerr.InvalidRequest("args must be a JSON object"))
			return
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = conn.SessionID
	}

	call := Call{
		RequestID: req.ID,
		Method:    req.Method,
		Args:      args,
		SessionID: sessionID,
		Timeout:   time.Duration(req.Timeout) * time.Millisecond,
		Conn:      conn,
	}

	res := d.runner.Invoke(ctx, call)
	if res.Err != nil {
		d.sendErr(conn, req.ID, res.Err)
		return
	}

	data, err := json.Marshal(res.Value)
	if err != nil {
		d.sendErr(conn, req.ID, photonerr.Internal(err))
		return
	}
	conn.SendResponse(protocol.Result(req.ID, data))
}

func (d *Dispatcher) handlePromptResponse(conn *Connection, req *protocol.Request) {
	if ok := conn.ResolvePrompt(req.ID, req.PromptValue); !ok {
		d.sendErr(conn, req.ID, photonerr.InvalidRequest("no pending prompt with that id"))
	}
}

func (d *Dispatcher) handleLock(ctx context.Context, conn *Connection, req *protocol.Request) {
	millis, ok := protocol.LockTimeoutMillis(req.LockTimeout)
	if !ok {
		d.sendErr(conn, req.ID, photonerr.InvalidRequest("lockTimeout out of range"))
		return
	}
	wait := req.Wait == nil || *req.Wait

	acquired, expiresAt, reason := d.locks.Acquire(ctx, req.LockName, req.SessionID, time.Duration(millis)*time.Millisecond, wait)
	if !acquired {
		if reason == "deadline" {
			conn.SendResponse(protocol.LockDeadlineExceeded(req.ID))
		} else {
			conn.SendResponse(protocol.LockDenied(req.ID, reason))
		}
		return
	}
	conn.SendResponse(protocol.LockAcquired(req.ID, expiresAt.UnixMilli()))
}

func (d *Dispatcher) handleListLocks(conn *Connection, req *protocol.Request) {
	snapshot := d.locks.List()
	locks := make([]protocol.LockInfo, len(snapshot))
	for i, l := range snapshot {
		locks[i] = protocol.LockInfo{Name: l.Name, Holder: l.Holder, ExpiresAt: l.ExpiresAt.UnixMilli()}
	}
	conn.SendResponse(protocol.LocksList(req.ID, locks))
}

func (d *Dispatcher) handleListJobs(conn *Connection, req *protocol.Request) {
	snapshot := d.scheduler.List()
	jobs := make([]protocol.JobInfo, len(snapshot))
	for i, j := range snapshot {
		info := protocol.JobInfo{
			ID: j.ID, Method: j.Method, Cron: j.CronExpr,
			NextRun: j.NextRun.UnixMilli(), RunCount: j.RunCount,
			Degraded: j.Degraded, CreatedAt: j.CreatedAt.UnixMilli(),
		}
		if !j.LastRun.IsZero() {
			info.LastRun = j.LastRun.UnixMilli()
		}
		jobs[i] = info
	}
	conn.SendResponse(protocol.JobsList(req.ID, jobs))
}

func (d *Dispatcher) handleReload(ctx context.Context, conn *Connection, req *protocol.Request) {
	if err := d.ReloadNow(ctx, req.PhotonPath); err != nil {
		d.sendErr(conn, req.ID, photonerr.Wrap(photonerr.KindInternal, "reload failed", err))
		return
	}
	conn.SendResponse(protocol.Reloaded(req.ID))
}

// ReloadNow drives the same reload sequence handleReload uses, for
// callers with no Connection to reply to — namely the source file
// watcher, which triggers a reload implicitly on file changes rather
// than in response to a wire request.
func (d *Dispatcher) ReloadNow(ctx context.Context, sourcePath string) error {
	if err := d.host.Reload(ctx, sourcePath); err != nil {
		return err
	}
	if d.webhooks != nil {
		if _, descriptor, _, _ := d.host.Current(); descriptor != nil {
			if err := d.webhooks.Rebuild(descriptor); err != nil {
				d.logger.Warn("webhook route rebuild failed after reload", "error", err)
			}
		}
	}
	return nil
}

func (d *Dispatcher) sendErr(conn *Connection, id string, err error) {
	perr, ok := err.(*photonerr.Error)
	if !ok {
		perr = photonerr.Internal(err)
	}
	conn.SendResponse(protocol.ErrorResult(id, perr.Error(), string(perr.Kind)))
}
