package comfyui

import (
	"encoding/json"
	"testing"
)

func decodeHistory(t *testing.T, raw string) map[string]historyEntry {
	t.Helper()
	var payload map[string]historyEntry
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload
}

func TestOutcomeFromHistory(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		kind      OutcomeKind
		reason    string
		artifacts int
	}{
		{name: "absent", raw: `{}`, kind: OutcomePending},
		{name: "other job only", raw: `{"job-2":{"status":{"completed":true}}}`, kind: OutcomePending},
		{name: "running no outputs", raw: `{"job-1":{"status":{"status_str":"running","completed":false},"outputs":{}}}`, kind: OutcomePending},
		{name: "error key", raw: `{"job-1":{"status":{"error":"boom"}}}`, kind: OutcomeFailed, reason: "boom"},
		{name: "error object", raw: `{"job-1":{"status":{"error":{"message":"x"}}}}`, kind: OutcomeFailed, reason: `{"message":"x"}`},
		{name: "status_str error without messages", raw: `{"job-1":{"status":{"status_str":"error"}}}`, kind: OutcomeFailed, reason: "execution error"},
		{name: "completed without outputs", raw: `{"job-1":{"status":{"status_str":"success","completed":true},"outputs":{}}}`, kind: OutcomePending},
		{name: "completed with temp previews only", raw: `{"job-1":{"status":{"completed":true},"outputs":{"9":{"images":[{"filename":"p.png","type":"temp"}]}}}}`, kind: OutcomePending},
		{
			name:      "outputs across nodes",
			raw:       `{"job-1":{"outputs":{"9":{"images":[{"filename":"b.png","type":"output"}]},"8":{"images":[{"filename":"a.png","type":"output"},{"filename":"t.png","type":"temp"}]}}}}`,
			kind:      OutcomeSucceeded,
			artifacts: 2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := outcomeFromHistory(decodeHistory(t, tc.raw), "job-1")
			if got.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tc.kind)
			}
			if got.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", got.Reason, tc.reason)
			}
			if len(got.Artifacts) != tc.artifacts {
				t.Fatalf("artifacts = %d, want %d", len(got.Artifacts), tc.artifacts)
			}
		})
	}
}

func TestArtifactsOrderedByNode(t *testing.T) {
	payload := decodeHistory(t, `{"job-1":{"outputs":{"9":{"images":[{"filename":"b.png","type":"output"}]},"10":{"images":[{"filename":"c.png","type":"output"}]},"8":{"images":[{"filename":"a.png","type":"output"}]}}}}`)
	got := outcomeFromHistory(payload, "job-1").Artifacts
	want := []string{"c.png", "a.png", "b.png"}
	for i, ref := range got {
		if ref.Filename != want[i] {
			t.Fatalf("artifact[%d] = %q, want %q", i, ref.Filename, want[i])
		}
	}
}
