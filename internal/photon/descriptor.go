// Package photon models the data the daemon core consumes from a
// loaded photon source: its method descriptors, its constructed
// instance, and the generation boundary a hot reload introduces.
package photon

import "sync"

// ParamDescriptor describes one constructor or method argument as
// reported by the external Extractor (§6.3).
type ParamDescriptor struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// MethodDescriptor is one public method of a photon class.
//
// Locked is either empty (no explicit lock domain — the method still
// runs under the instance's implicit lock), or a lock-domain name
// shared by every method annotated with the same name.
//
// Scheduled, if non-empty, is the method's cron expression; a
// scheduled method must accept no arguments.
//
// Webhook selects whether the method is reachable from the HTTP front
// door: WebhookBound marks a bare annotation (binds to the method's own
// name), and a non-empty WebhookPath is an explicit path that takes
// precedence. Both are inputs to the Webhook Router
// (internal/daemon/webhook_router.go), which never writes them.
type MethodDescriptor struct {
	Name         string            `json:"name"`
	Params       []ParamDescriptor `json:"params"`
	Locked       string            `json:"locked,omitempty"`
	Scheduled    string            `json:"scheduled,omitempty"`
	WebhookBound bool              `json:"webhook,omitempty"`
	WebhookPath  string            `json:"webhookPath,omitempty"`
}

// Descriptor identifies one photon within a working directory. It is
// immutable within a generation; a reload produces a new Descriptor
// alongside a new Generation number.
type Descriptor struct {
	Name             string
	SourcePath       string
	WorkDir          string
	Stateful         bool
	Methods          []MethodDescriptor
	ConstructorParams []ParamDescriptor
}

// MethodByName returns the method descriptor with the given name, or
// false if the current generation has no such method.
func (d *Descriptor) MethodByName(name string) (MethodDescriptor, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodDescriptor{}, false
}

// Generation is a monotonically increasing counter identifying one
// load of a photon's source. Reload replaces the active generation
// wholesale; no instance is ever shared across generations.
type Generation uint64

// GenerationCounter hands out strictly increasing generation numbers.
type GenerationCounter struct {
	mu   sync.Mutex
	next Generation
}

// Next returns the next generation number, starting at 1.
func (c *GenerationCounter) Next() Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return c.next
}
