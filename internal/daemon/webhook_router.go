package daemon

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/photon-run/photond/internal/photon"
	"github.com/photon-run/photond/internal/protocol"
)

// WebhookRouter is a pure path→method lookup table rebuilt on every
// reload (§4.9). It has no runtime state beyond the current
// generation's mapping.
type WebhookRouter struct {
	mu     sync.RWMutex
	byPath map[string]string // path -> method name
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{byPath: make(map[string]string)}
}

// Rebuild recomputes the path→method mapping from a descriptor's
// methods, applying the three binding rules of §4.9. If two methods
// claim the same path it returns an error and keeps the previous
// mapping. Its callers (Supervisor startup and Dispatcher.ReloadNow)
// only log that error: the photon stays loaded and the new
// generation's routes are not installed.
func (r *WebhookRouter) Rebuild(descriptor *photon.Descriptor) error {
	byPath := make(map[string]string)

	for _, m := range descriptor.Methods {
		path, ok := webhookPathFor(m)
		if !ok {
			continue
		}
		if existing, taken := byPath[path]; taken {
			return fmt.Errorf("webhook path %q claimed by both %q and %q", path, existing, m.Name)
		}
		byPath[path] = m.Name
	}

	r.mu.Lock()
	r.byPath = byPath
	r.mu.Unlock()
	return nil
}

// webhookPathFor implements the three binding rules in order:
// explicit string path, bare annotation (method's own name), then the
// automatic handle* convention.
func webhookPathFor(m photon.MethodDescriptor) (string, bool) {
	if m.WebhookPath != "" {
		return m.WebhookPath, true
	}
	if m.WebhookBound {
		return m.Name, true
	}
	if rest, ok := strings.CutPrefix(m.Name, "handle"); ok && rest != "" {
		return kebabCase(rest), true
	}
	return "", false
}

// MethodForPath returns the method name bound to an HTTP front-door
// path, or false if no method claims it.
func (r *WebhookRouter) MethodForPath(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	method, ok := r.byPath[path]
	return method, ok
}

// List returns every bound path/method pair, sorted by path — consumed
// by photon-webhookd via the list_webhooks request so the HTTP front
// door never has to re-derive the binding rules itself.
func (r *WebhookRouter) List() []protocol.WebhookInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.WebhookInfo, 0, len(r.byPath))
	for path, method := range r.byPath {
		out = append(out, protocol.WebhookInfo{Path: path, Method: method})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// kebabCase converts a "GithubPush"-style remainder into
// "github-push", matching the `handleGithubPush` → `github-push`
// example in §4.9.
func kebabCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
