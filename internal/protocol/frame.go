// Package protocol implements the photon daemon's wire format: one
// line of UTF-8 JSON per frame, request/response correlated by id
// (§6.2). Unlike a JSON-RPC dialect, every inbound/outbound shape is a
// flat object keyed by "type" — there is no envelope nesting.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Request is the envelope for every inbound frame. Only the fields
// relevant to a given Type are populated; Validate enforces the
// required-field rules per type from §6.2/§4.3.
type Request struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId,omitempty"`
	Method      string          `json:"method,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	Timeout     int64           `json:"timeout,omitempty"`
	Channel     string          `json:"channel,omitempty"`
	Message     json.RawMessage `json:"message,omitempty"`
	LockName    string          `json:"lockName,omitempty"`
	LockTimeout int64           `json:"lockTimeout,omitempty"`
	Wait        *bool           `json:"wait,omitempty"`
	JobID       string          `json:"jobId,omitempty"`
	Cron        string          `json:"cron,omitempty"`
	PhotonPath  string          `json:"photonPath,omitempty"`
	PromptValue json.RawMessage `json:"promptValue,omitempty"`
}

func ParseRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	return &req, nil
}

// LockInfo describes one entry of a list_locks response.
type LockInfo struct {
	Name      string `json:"name"`
	Holder    string `json:"holder"`
	ExpiresAt int64  `json:"expiresAt"`
}

// WebhookInfo describes one bound HTTP front-door path (§4.9),
// consulted by photon-webhookd to resolve an inbound request to a
// method name without duplicating the binding rules itself.
type WebhookInfo struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// JobInfo describes one entry of a list_jobs response.
type JobInfo struct {
	ID        string `json:"id"`
	Method    string `json:"method"`
	Cron      string `json:"cron"`
	NextRun   int64  `json:"nextRun"`
	LastRun   int64  `json:"lastRun,omitempty"`
	RunCount  int    `json:"runCount"`
	Degraded  bool   `json:"degraded,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Response is the envelope for every outbound frame. Like Request it
// is one flat struct with every field a distinct response shape might
// need — the Dispatcher's subsystem handlers populate only the
// fields relevant to the Type they're answering.
type Response struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	// command / method-call results
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"`

	// lock manager
	Acquired  *bool      `json:"acquired,omitempty"`
	Released  *bool      `json:"released,omitempty"`
	Holder    string     `json:"holder,omitempty"`
	ExpiresAt *int64     `json:"expiresAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Locks     []LockInfo `json:"locks,omitempty"`

	// scheduler
	Scheduled   *bool     `json:"scheduled,omitempty"`
	Unscheduled *bool     `json:"unscheduled,omitempty"`
	Jobs        []JobInfo `json:"jobs,omitempty"`

	// channel bus
	Subscribed      *bool           `json:"subscribed,omitempty"`
	Unsubscribed    *bool           `json:"unsubscribed,omitempty"`
	Channel         string          `json:"channel,omitempty"`
	SubscriberCount *int            `json:"subscriberCount,omitempty"`
	Published       *bool           `json:"published,omitempty"`
	Delivered       *int            `json:"delivered,omitempty"`
	Message         json.RawMessage `json:"message,omitempty"`

	// instance host
	Reloaded *bool `json:"reloaded,omitempty"`

	// webhook router
	Webhooks []WebhookInfo `json:"webhooks,omitempty"`

	// method runner suspension
	Prompt json.RawMessage `json:"prompt,omitempty"`
}

func (r *Response) Serialize() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize frame: %w", err)
	}
	return append(data, '\n'), nil
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
func int64Ptr(i int64) *int64 { return &i }

func Pong(id string) *Response {
	return &Response{Type: "pong", ID: id}
}

func Result(id string, result json.RawMessage) *Response {
	return &Response{Type: "result", ID: id, Success: boolPtr(true), Result: result}
}

func ErrorResult(id, message, kind string) *Response {
	return &Response{Type: "error", ID: id, Error: message, Kind: kind}
}

func LockAcquired(id string, expiresAt int64) *Response {
	return &Response{Type: "result", ID: id, Acquired: boolPtr(true), ExpiresAt: int64Ptr(expiresAt)}
}

func LockDenied(id, holder string) *Response {
	return &Response{Type: "result", ID: id, Acquired: boolPtr(false), Holder: holder}
}

func LockDeadlineExceeded(id string) *Response {
	return &Response{Type: "result", ID: id, Acquired: boolPtr(false), Reason: "deadline"}
}

func Released(id string, ok bool, reason string) *Response {
	return &Response{Type: "result", ID: id, Released: boolPtr(ok), Reason: reason}
}

func LocksList(id string, locks []LockInfo) *Response {
	return &Response{Type: "result", ID: id, Locks: locks}
}

func JobsList(id string, jobs []JobInfo) *Response {
	return &Response{Type: "result", ID: id, Jobs: jobs}
}

func Scheduled(id string) *Response {
	return &Response{Type: "result", ID: id, Scheduled: boolPtr(true)}
}

func Unscheduled(id string, ok bool) *Response {
	return &Response{Type: "result", ID: id, Unscheduled: boolPtr(ok)}
}

func Subscribed(id, channel string, count int) *Response {
	return &Response{Type: "result", ID: id, Subscribed: boolPtr(true), Channel: channel, SubscriberCount: intPtr(count)}
}

func Unsubscribed(id string) *Response {
	return &Response{Type: "result", ID: id, Unsubscribed: boolPtr(true)}
}

func Published(id string, delivered int) *Response {
	return &Response{Type: "result", ID: id, Published: boolPtr(true), Delivered: intPtr(delivered)}
}

func ChannelMessage(channel string, message json.RawMessage) *Response {
	return &Response{Type: "channel_message", ID: "", Channel: channel, Message: message}
}

func Reloaded(id string) *Response {
	return &Response{Type: "result", ID: id, Reloaded: boolPtr(true)}
}

func PromptRequest(id string, prompt json.RawMessage) *Response {
	return &Response{Type: "prompt", ID: id, Prompt: prompt}
}

func WebhooksList(id string, webhooks []WebhookInfo) *Response {
	return &Response{Type: "result", ID: id, Webhooks: webhooks}
}
