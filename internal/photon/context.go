package photon

import "context"

type contextKey int

const (
	promptKey contextKey = iota
	emitterKey
)

// WithPrompter binds a Prompter to ctx so user code can retrieve it
// via PrompterFromContext and call Prompt() during a method body.
func WithPrompter(ctx context.Context, p Prompter) context.Context {
	return context.WithValue(ctx, promptKey, p)
}

// PrompterFromContext retrieves the Prompter bound by the Method
// Runner for the call in progress, if any (internally synthesized
// calls such as scheduler fires have none).
func PrompterFromContext(ctx context.Context) (Prompter, bool) {
	p, ok := ctx.Value(promptKey).(Prompter)
	return p, ok
}

// WithEmitter binds an Emitter to ctx so user code can call emit()
// during a method body.
func WithEmitter(ctx context.Context, e Emitter) context.Context {
	return context.WithValue(ctx, emitterKey, e)
}

func EmitterFromContext(ctx context.Context) (Emitter, bool) {
	e, ok := ctx.Value(emitterKey).(Emitter)
	return e, ok
}
