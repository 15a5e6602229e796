package comfyui

import (
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable is returned when the liveness probe fails before a
// submission.
var ErrBackendUnavailable = errors.New("comfyui: backend unavailable")

// SubmissionRejectedError reports a non-2xx answer to POST /prompt.
type SubmissionRejectedError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionRejectedError) Error() string {
	return fmt.Sprintf("comfyui: submission rejected: HTTP %d: %s", e.StatusCode, e.Body)
}

// HistoryError reports a non-2xx answer while polling a job.
type HistoryError struct {
	Handle     JobHandle
	StatusCode int
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("comfyui: history for job %s returned HTTP %d", e.Handle, e.StatusCode)
}

// JobFailedError reports a job the backend marked as failed.
type JobFailedError struct {
	Handle JobHandle
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("comfyui: job %s failed: %s", e.Handle, e.Reason)
}

// TimeoutError is returned once every poll attempt observed a pending job.
type TimeoutError struct {
	Handle   JobHandle
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("comfyui: job %s did not finish after %d polls (%s)", e.Handle, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// DownloadError reports a non-2xx answer while fetching an artifact.
type DownloadError struct {
	Filename   string
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("comfyui: download %s returned HTTP %d", e.Filename, e.StatusCode)
}

// TransportError wraps network failures talking to the backend.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("comfyui: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsBackendError reports whether err originated from the backend protocol
// rather than from local processing.
func IsBackendError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackendUnavailable) {
		return true
	}
	var (
		rejected  *SubmissionRejectedError
		history   *HistoryError
		failed    *JobFailedError
		timeout   *TimeoutError
		download  *DownloadError
		transport *TransportError
	)
	return errors.As(err, &rejected) ||
		errors.As(err, &history) ||
		errors.As(err, &failed) ||
		errors.As(err, &timeout) ||
		errors.As(err, &download) ||
		errors.As(err, &transport)
}
