package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/photon-run/photond/internal/photon"
	"github.com/photon-run/photond/internal/photonerr"
	"github.com/photon-run/photond/internal/protocol"
)

const defaultCallTimeout = 30 * time.Second

// Call is one inbound command, already resolved to the generation it
// will execute against.
type Call struct {
	RequestID string
	Method    string
	Args      map[string]any
	SessionID string
	Timeout   time.Duration
	Conn      *Connection // nil for internally synthesized calls (scheduler fires)
}

// CallResult is what the Runner hands back to the Dispatcher.
type CallResult struct {
	Value any
	Err   error // a *photonerr.Error when non-nil
}

// MethodRunner is the only component permitted to call user code
// (§4.5). It enforces the single-writer serialization invariant: the
// implicit whole-instance lock domain lives inside the Runner itself
// (never visible via list_locks); a method's explicit `locked`
// annotation additionally routes through the Lock Manager, making
// that domain both named and user-visible.
type MethodRunner struct {
	host   *InstanceHost
	locks  *LockManager
	logger *slog.Logger
}

func NewMethodRunner(host *InstanceHost, locks *LockManager, logger *slog.Logger) *MethodRunner {
	return &MethodRunner{
		host:   host,
		locks:  locks,
		logger: logger,
	}
}

// Invoke runs call against the currently active generation. It
// blocks the calling goroutine (a Dispatcher worker) until the
// implicit lock is acquired, any explicit named lock is acquired, and
// the method body returns or the deadline elapses — but it does not
// block on a suspended prompt, which parks on a future instead
// (§4.5).
func (r *MethodRunner) Invoke(ctx context.Context, call Call) CallResult {
	instance, descriptor, serialize, gen := r.host.Current()
	if instance == nil {
		return CallResult{Err: photonerr.Internal(fmt.Errorf("no instance loaded"))}
	}

	method, ok := descriptor.MethodByName(call.Method)
	if !ok {
		if call.Conn == nil {
			// A scheduler fire has no client connection to have typo'd a
			// method name against: the only way this lookup fails is a
			// job whose method existed at schedule time and vanished
			// from a later reload (§4.4/§4.7).
			return CallResult{Err: photonerr.MethodMissing(call.Method)}
		}
		return CallResult{Err: photonerr.UnknownMethod(call.Method)}
	}

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The implicit whole-instance domain: FIFO execution via the
	// generation's SerializeQueue. Entering exec IS holding the lock;
	// returning releases it for the next queued call.
	resultCh := serialize.Enqueue(call, func(call Call) CallResult {
		if method.Locked != "" {
			acquired, _, _ := r.locks.Acquire(callCtx, method.Locked, r.runnerHolder(call), timeout, true)
			if !acquired {
				return CallResult{Err: photonerr.LockTimeout(method.Locked)}
			}
			defer r.locks.Release(method.Locked, r.runnerHolder(call))
		}

		invokeCtx := photon.WithEmitter(callCtx, r.host.emitterFor(gen))
		if call.Conn != nil {
			invokeCtx = photon.WithPrompter(invokeCtx, &connectionPrompter{runner: r, conn: call.Conn})
		}

		value, err := r.execute(invokeCtx, instance, call, method.Name)
		return r.toResult(value, err, gen)
	})

	select {
	case res, ok := <-resultCh:
		if !ok {
			return CallResult{Err: photonerr.Internal(fmt.Errorf("serialize queue closed before %q ran", call.Method))}
		}
		if res.Err == nil {
			r.host.mu.RLock()
			current := r.host.current
			r.host.mu.RUnlock()
			if current != nil && current.gen == gen {
				r.host.NoteStateChange(current, descriptor)
			}
		}
		return res
	case <-callCtx.Done():
		return CallResult{Err: photonerr.Timeout()}
	}
}

// runnerHolder identifies the lock holder for a Runner-acquired named
// domain: the calling session, so that a client's own explicit `lock`
// request on the same name correctly contends with it.
func (r *MethodRunner) runnerHolder(call Call) string {
	if call.SessionID != "" {
		return call.SessionID
	}
	return "runner:" + call.RequestID
}

func (r *MethodRunner) execute(ctx context.Context, instance photon.Instance, call Call, method string) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = photonerr.Internal(fmt.Errorf("panic in method %q: %v", method, rec))
		}
	}()
	return instance.Invoke(ctx, method, call.Args)
}

func (r *MethodRunner) toResult(value any, err error, gen photon.Generation) CallResult {
	if err == nil {
		return CallResult{Value: value}
	}
	if perr, ok := err.(*photonerr.Error); ok {
		return CallResult{Err: perr}
	}
	return CallResult{Err: photonerr.UserError(err)}
}

// Prompt implements the photon.Prompter primitive: it emits a prompt
// frame on the originating connection, registers a correlation
// channel, and blocks the *method's goroutine* (not a Dispatcher
// worker — that worker is free after the SerializeQueue entry
// returns... note: this call happens from within the entry closure,
// so it does hold the implicit lock across the suspension, exactly as
// §4.5 specifies: "suspends the call without releasing the method's
// implicit lock").
func (r *MethodRunner) Prompt(ctx context.Context, conn *Connection, question any) (any, error) {
	if conn == nil {
		return nil, photonerr.Internal(fmt.Errorf("prompt requires an originating connection"))
	}
	promptID := uuid.New().String()
	data, err := json.Marshal(question)
	if err != nil {
		return nil, photonerr.Internal(err)
	}

	ch := conn.RegisterPrompt(promptID)
	conn.SendResponse(protocol.PromptRequest(promptID, data))

	select {
	case answer, ok := <-ch:
		if !ok {
			return nil, photonerr.ClientGone()
		}
		var v any
		if err := json.Unmarshal(answer, &v); err != nil {
			return nil, photonerr.Internal(err)
		}
		return v, nil
	case <-ctx.Done():
		return nil, photonerr.Timeout()
	}
}

// connectionPrompter adapts a MethodRunner + the call's originating
// Connection into the photon.Prompter primitive bound into a method's
// invocation context.
type connectionPrompter struct {
	runner *MethodRunner
	conn   *Connection
}

func (p *connectionPrompter) Prompt(ctx context.Context, question any) (any, error) {
	return p.runner.Prompt(ctx, p.conn, question)
}
