package session

import (
	"encoding/json"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"
)

// latestCommitPattern matches a latest_commit value in non-JSON tool
// output.
var latestCommitPattern = regexp.MustCompile(`"?latest_commit"?\s*[:=]\s*"?([0-9a-fA-F]{7,40})`)

// CallMemo remembers the latest commit reported per project so that
// delta queries ("what changed") can be scoped automatically: when the
// model omits since_commit on a follow-up call, the memo injects the
// last value it saw for that project.
type CallMemo struct {
	mu     sync.Mutex
	latest map[string]string // project key -> commit
}

// NewCallMemo returns an empty memo.
func NewCallMemo() *CallMemo {
	return &CallMemo{latest: make(map[string]string)}
}

// projectKey scopes memo entries. Calls without a project_dir share
// one slot.
func projectKey(args map[string]any) string {
	if dir, ok := args["project_dir"].(string); ok {
		return dir
	}
	return ""
}

// wantsSinceCommit reports whether the capability takes a since_commit
// argument worth injecting: the delta-style calls, named *_changes.
func wantsSinceCommit(capability string) bool {
	const suffix = "_changes"
	return len(capability) > len(suffix) && capability[len(capability)-len(suffix):] == suffix
}

// Prepare returns the arguments to actually send, injecting
// since_commit into delta calls that omit it.
func (m *CallMemo) Prepare(capability string, args map[string]any) map[string]any {
	if !wantsSinceCommit(capability) {
		return args
	}
	if v, ok := args["since_commit"]; ok && v != nil && v != "" {
		return args
	}

	m.mu.Lock()
	commit, ok := m.latest[projectKey(args)]
	m.mu.Unlock()
	if !ok {
		return args
	}

	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out["since_commit"] = commit

	log.Debug().
		Str("capability", capability).
		Str("since_commit", commit).
		Msg("session: injected remembered commit into delta call")
	return out
}

// Observe scans a successful result for a latest_commit value and
// remembers it for the call's project.
func (m *CallMemo) Observe(args map[string]any, payload string) {
	if payload == "" {
		return
	}

	commit := extractLatestCommit(payload)
	if commit == "" {
		return
	}

	m.mu.Lock()
	m.latest[projectKey(args)] = commit
	m.mu.Unlock()
}

// extractLatestCommit tries JSON first, then a loose text match.
func extractLatestCommit(payload string) string {
	var doc struct {
		LatestCommit string `json:"latest_commit"`
	}
	if err := json.Unmarshal([]byte(payload), &doc); err == nil && doc.LatestCommit != "" {
		return doc.LatestCommit
	}

	if m := latestCommitPattern.FindStringSubmatch(payload); m != nil {
		return m[1]
	}
	return ""
}
