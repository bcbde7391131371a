package protocol

import "github.com/photon-run/photond/internal/photonerr"

// KnownTypes are the request types the Dispatcher recognizes (§4.3).
var KnownTypes = map[string]bool{
	"ping":            true,
	"shutdown":        true,
	"command":         true,
	"subscribe":       true,
	"unsubscribe":     true,
	"publish":         true,
	"lock":            true,
	"unlock":          true,
	"list_locks":      true,
	"schedule":        true,
	"unschedule":      true,
	"list_jobs":       true,
	"reload":          true,
	"prompt_response": true,
	"list_webhooks":   true,
}

// Validate enforces the required-field rules of §6.2/§4.3 for a
// parsed request. A missing id is the one condition the caller must
// check before calling Validate, since an error response needs some
// id to correlate against (falls back to "unknown").
func Validate(req *Request) *photonerr.Error {
	if req.ID == "" {
		return photonerr.InvalidRequest("missing required field \"id\"")
	}
	if !KnownTypes[req.Type] {
		return photonerr.InvalidRequest("unknown request type " + req.Type)
	}

	switch req.Type {
	case "command":
		if req.Method == "" {
			return photonerr.InvalidRequest("\"command\" requires \"method\"")
		}
	case "subscribe", "unsubscribe":
		if req.Channel == "" {
			return photonerr.InvalidRequest(req.Type + " requires \"channel\"")
		}
	case "publish":
		if req.Channel == "" {
			return photonerr.InvalidRequest("\"publish\" requires \"channel\"")
		}
		if len(req.Message) == 0 {
			return photonerr.InvalidRequest("\"publish\" requires \"message\"")
		}
	case "lock":
		if req.LockName == "" {
			return photonerr.InvalidRequest("\"lock\" requires \"lockName\"")
		}
		if req.SessionID == "" {
			return photonerr.InvalidRequest("\"lock\" requires \"sessionId\"")
		}
	case "unlock":
		if req.LockName == "" {
			return photonerr.InvalidRequest("\"unlock\" requires \"lockName\"")
		}
		if req.SessionID == "" {
			return photonerr.InvalidRequest("\"unlock\" requires \"sessionId\"")
		}
	case "schedule":
		if req.JobID == "" {
			return photonerr.InvalidRequest("\"schedule\" requires \"jobId\"")
		}
		if req.Method == "" {
			return photonerr.InvalidRequest("\"schedule\" requires \"method\"")
		}
		if req.Cron == "" {
			return photonerr.InvalidRequest("\"schedule\" requires \"cron\"")
		}
	case "unschedule":
		if req.JobID == "" {
			return photonerr.InvalidRequest("\"unschedule\" requires \"jobId\"")
		}
	case "reload":
		if req.PhotonPath == "" {
			return photonerr.InvalidRequest("\"reload\" requires \"photonPath\"")
		}
	case "prompt_response":
		if len(req.PromptValue) == 0 {
			return photonerr.InvalidRequest("\"prompt_response\" requires \"promptValue\"")
		}
	}
	return nil
}

// LockTimeoutMillis validates the §9 Open Question decision: lock
// timeouts are milliseconds in [1, 86_400_000].
func LockTimeoutMillis(v int64) (int64, bool) {
	if v == 0 {
		return 30_000, true // default per §4.5
	}
	if v < 1 || v > 86_400_000 {
		return 0, false
	}
	return v, true
}
