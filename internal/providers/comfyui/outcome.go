package comfyui

import (
	"encoding/json"
	"sort"
	"strings"
)

// JobHandle is the backend-assigned identifier of a submitted job.
type JobHandle string

// OutcomeKind classifies one observation of a job.
type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeFailed
	OutcomeSucceeded
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFailed:
		return "failed"
	case OutcomeSucceeded:
		return "succeeded"
	default:
		return "pending"
	}
}

// ArtifactRef locates a file produced by the backend.
type ArtifactRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Outcome is the typed view of a history entry. Reason is set for failed jobs,
// Artifacts for succeeded ones.
type Outcome struct {
	Kind      OutcomeKind
	Reason    string
	Artifacts []ArtifactRef
}

type historyEntry struct {
	Status  map[string]json.RawMessage `json:"status"`
	Outputs map[string]struct {
		Images []ArtifactRef `json:"images"`
	} `json:"outputs"`
}

type statusMessage struct {
	Kind string
	Data struct {
		ExceptionMessage string `json:"exception_message"`
		ExceptionType    string `json:"exception_type"`
		NodeType         string `json:"node_type"`
	}
}

func (m *statusMessage) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil || len(pair) != 2 {
		return nil
	}
	_ = json.Unmarshal(pair[0], &m.Kind)
	_ = json.Unmarshal(pair[1], &m.Data)
	return nil
}

// outcomeFromHistory interprets the history payload for a single job. A job
// missing from the payload, or present without error and without output
// images, is still pending.
func outcomeFromHistory(payload map[string]historyEntry, handle JobHandle) Outcome {
	entry, ok := payload[string(handle)]
	if !ok {
		return Outcome{Kind: OutcomePending}
	}
	if reason, failed := entry.failure(); failed {
		return Outcome{Kind: OutcomeFailed, Reason: reason}
	}
	artifacts := entry.artifacts()
	if len(artifacts) > 0 {
		return Outcome{Kind: OutcomeSucceeded, Artifacts: artifacts}
	}
	// Outputs may still be flushing after completion; the poll timeout bounds
	// the wait.
	return Outcome{Kind: OutcomePending}
}

func (e historyEntry) failure() (string, bool) {
	if raw, ok := e.Status["error"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
			return msg, true
		}
		return strings.TrimSpace(string(raw)), true
	}
	var statusStr string
	if raw, ok := e.Status["status_str"]; ok {
		_ = json.Unmarshal(raw, &statusStr)
	}
	if statusStr != "error" {
		return "", false
	}
	var messages []statusMessage
	if raw, ok := e.Status["messages"]; ok {
		_ = json.Unmarshal(raw, &messages)
	}
	for _, m := range messages {
		if m.Kind == "execution_error" && m.Data.ExceptionMessage != "" {
			if m.Data.NodeType != "" {
				return m.Data.NodeType + ": " + strings.TrimSpace(m.Data.ExceptionMessage), true
			}
			return strings.TrimSpace(m.Data.ExceptionMessage), true
		}
	}
	return "execution error", true
}

// artifacts returns final outputs only; previews and temp files are skipped.
// Output nodes are visited in key order so the result is stable.
func (e historyEntry) artifacts() []ArtifactRef {
	keys := make([]string, 0, len(e.Outputs))
	for k := range e.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var refs []ArtifactRef
	for _, k := range keys {
		for _, img := range e.Outputs[k].Images {
			if img.Type == "output" && img.Filename != "" {
				refs = append(refs, img)
			}
		}
	}
	return refs
}
