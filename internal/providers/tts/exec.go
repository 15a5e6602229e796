package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// ErrBridgeExited reports that the bridge process is gone. The model has to
// be loaded again, which starts a new process.
var ErrBridgeExited = errors.New("tts: engine process exited")

const stderrTail = 4 << 10

// execBackend talks to one long-lived model bridge process. Requests and
// responses are single JSON lines on the process's stdin and stdout, so the
// model stays resident between calls.
type execBackend struct {
	cmd     []string
	device  string
	timeout time.Duration

	mu   sync.Mutex
	proc *bridgeProc
}

type execRequest struct {
	Op                string  `json:"op"`
	Device            string  `json:"device"`
	Text              string  `json:"text,omitempty"`
	LanguageID        string  `json:"language_id,omitempty"`
	AudioPromptPath   string  `json:"audio_prompt_path,omitempty"`
	Exaggeration      float64 `json:"exaggeration"`
	CFGWeight         float64 `json:"cfg_weight"`
	Temperature       float64 `json:"temperature"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	MinP              float64 `json:"min_p"`
	TopP              float64 `json:"top_p"`
}

type execResponse struct {
	Error      string            `json:"error"`
	SampleRate int               `json:"sample_rate"`
	Languages  map[string]string `json:"languages"`
	WAVBase64  string            `json:"wav_base64"`
}

// NewExecBackend parses command with shell quoting rules. The process is
// started by the first Probe.
func NewExecBackend(command, device string, timeout time.Duration) (Backend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("tts: parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("tts: command empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &execBackend{cmd: args, device: device, timeout: timeout}, nil
}

// Probe starts the bridge if it is not running and asks it to load the model.
func (e *execBackend) Probe(ctx context.Context) (ModelInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc != nil && e.proc.exited() {
		e.stopLocked()
	}
	if e.proc == nil {
		p, err := startBridge(e.cmd)
		if err != nil {
			return ModelInfo{}, err
		}
		e.proc = p
	}
	resp, err := e.callLocked(ctx, execRequest{Op: "load", Device: e.device})
	if err != nil {
		return ModelInfo{}, err
	}
	if resp.SampleRate <= 0 {
		return ModelInfo{}, errors.New("tts: engine reported no sample rate")
	}
	return ModelInfo{SampleRate: resp.SampleRate, Languages: resp.Languages}, nil
}

// Generate reuses the running bridge. Without one it fails with
// ErrBridgeExited instead of starting a process that never loaded the model.
func (e *execBackend) Generate(ctx context.Context, req Request) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil || e.proc.exited() {
		e.stopLocked()
		return nil, fmt.Errorf("%w before synthesize", ErrBridgeExited)
	}
	resp, err := e.callLocked(ctx, execRequest{
		Op:                "synthesize",
		Device:            e.device,
		Text:              req.Text,
		LanguageID:        req.LanguageID,
		AudioPromptPath:   req.AudioPromptPath,
		Exaggeration:      req.Exaggeration,
		CFGWeight:         req.CFGWeight,
		Temperature:       req.Temperature,
		RepetitionPenalty: req.RepetitionPenalty,
		MinP:              req.MinP,
		TopP:              req.TopP,
	})
	if err != nil {
		return nil, err
	}
	wav, err := base64.StdEncoding.DecodeString(resp.WAVBase64)
	if err != nil {
		return nil, fmt.Errorf("tts: decode audio: %w", err)
	}
	if len(wav) == 0 {
		return nil, errors.New("tts: engine returned no audio")
	}
	return wav, nil
}

// Close ends the bridge: stdin is closed so it can exit on its own, and it is
// killed if it has not exited within a few seconds.
func (e *execBackend) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil {
		return nil
	}
	p := e.proc
	e.proc = nil
	_ = p.stdin.Close()
	select {
	case <-p.done:
	case <-time.After(3 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	_ = p.stdout.Close()
	return nil
}

type lineResult struct {
	line []byte
	err  error
}

func (e *execBackend) callLocked(ctx context.Context, req execRequest) (execResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return execResponse{}, fmt.Errorf("tts: encode request: %w", err)
	}
	payload = append(payload, '\n')
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	p := e.proc
	ch := make(chan lineResult, 1)
	go func() {
		if _, err := p.stdin.Write(payload); err != nil {
			ch <- lineResult{err: err}
			return
		}
		line, err := p.reader.ReadBytes('\n')
		ch <- lineResult{line: line, err: err}
	}()

	var res lineResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		// The reply may still arrive; the stream cannot be reused.
		e.stopLocked()
		return execResponse{}, fmt.Errorf("%w: %s abandoned: %v", ErrBridgeExited, req.Op, ctx.Err())
	}
	if res.err != nil {
		msg := p.failure(res.err)
		e.stopLocked()
		return execResponse{}, fmt.Errorf("%w during %s: %s", ErrBridgeExited, req.Op, msg)
	}
	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(res.line), &resp); err != nil {
		e.stopLocked()
		return execResponse{}, fmt.Errorf("tts: decode engine response: %w", err)
	}
	if resp.Error != "" {
		return execResponse{}, fmt.Errorf("tts: %s", resp.Error)
	}
	return resp, nil
}

// stopLocked kills the current process, if any, and forgets it.
func (e *execBackend) stopLocked() {
	if e.proc == nil {
		return
	}
	p := e.proc
	e.proc = nil
	_ = p.cmd.Process.Kill()
	<-p.done
	_ = p.stdout.Close()
}

type bridgeProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	reader *bufio.Reader
	stderr *tailBuffer
	done   chan struct{}
	err    error
}

func startBridge(args []string) (*bridgeProc, error) {
	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("tts: engine stdin: %w", err)
	}
	// An os.File keeps the read side open after Wait returns.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("tts: engine stdout: %w", err)
	}
	cmd.Stdout = pw
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("tts: start engine: %w", err)
	}
	pw.Close()
	p := &bridgeProc{
		cmd:    cmd,
		stdin:  stdin,
		stdout: pr,
		reader: bufio.NewReader(pr),
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *bridgeProc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// failure describes why the stream broke, preferring the last stderr line.
func (p *bridgeProc) failure(ioErr error) string {
	select {
	case <-p.done:
	case <-time.After(time.Second):
	}
	if msg := lastLine(p.stderr.String()); msg != "" {
		return msg
	}
	if p.exited() && p.err != nil {
		return p.err.Error()
	}
	return ioErr.Error()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
