package photon

import "context"

// Instance is one live, generation-scoped object owning all of a
// photon's user state. The Instance Host never exposes an Instance
// across a generation boundary.
type Instance interface {
	// Invoke calls the named method with an args map and returns its
	// result or a user error. ctx carries the call's cancellation
	// signal (deadline expiry, connection loss, or shutdown).
	Invoke(ctx context.Context, method string, args map[string]any) (any, error)
}

// ShutdownHook is implemented by instances that need to run cleanup
// when replaced by a reload or torn down at daemon shutdown.
type ShutdownHook interface {
	OnShutdown(ctx context.Context)
}

// StateProvider is implemented by instances of a stateful photon; it
// exposes the subset of fields the Instance Host snapshots to disk.
// Snapshot must return a value that is safe to encode as JSON without
// further synchronization — callers take a point-in-time copy.
type StateProvider interface {
	StateSnapshot() map[string]any
}

// Emitter is the primitive user code calls to publish on the Channel
// Bus from within a method body (design note §9: "emit()"). The
// Instance Host binds one Emitter per instance, tagged with a
// synthetic connection handle so the instance's own publishes never
// count as self-delivery to other subscribers.
type Emitter interface {
	Emit(channel string, message any) (delivered int)
}

// Prompter is the primitive user code calls to suspend a method body
// and request input from the connection that originated the call
// (§4.5). Prompt blocks the calling goroutine — not the Dispatcher
// worker pool — until a prompt_response arrives, ctx is cancelled, or
// the connection is lost.
type Prompter interface {
	Prompt(ctx context.Context, question any) (answer any, err error)
}

// Constructor builds a new Instance for a generation, given the
// classified constructor arguments (§4.4). It is supplied by the
// external Extractor alongside the method descriptor list.
type Constructor func(ctx context.Context, args map[string]any) (Instance, error)

// Extractor is the external collaborator (§6.3) that parses a
// photon's annotation comments and yields its method descriptors plus
// a function that constructs the class given resolved dependencies.
// The core never parses the photon source language itself.
type Extractor interface {
	Extract(ctx context.Context, sourcePath string) (*Descriptor, Constructor, error)
}
