package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/uniseg"

	"github.com/oukeidos/ocap/internal/apperrors"
	"github.com/oukeidos/ocap/internal/recovery"
	"github.com/oukeidos/ocap/internal/sidecar"
)

// Status is the terminal state of one job.
type Status string

const (
	StatusSuccess  Status = "Success"
	StatusSkipped  Status = "Skipped"
	StatusFailed   Status = "Failed"
	StatusCanceled Status = "Canceled"
)

// RunStatus is the terminal state of a whole run.
type RunStatus string

const (
	RunStatusSuccess        RunStatus = "Success"
	RunStatusPartialSuccess RunStatus = "Partial Success"
	RunStatusFailure        RunStatus = "Failure"
)

func runStatusFromRecovery(status string) RunStatus {
	switch status {
	case string(RunStatusSuccess):
		return RunStatusSuccess
	case string(RunStatusPartialSuccess):
		return RunStatusPartialSuccess
	default:
		return RunStatusFailure
	}
}

// CaptionResult is the outcome of one job.
type CaptionResult struct {
	Job     Job           `json:"-" yaml:"-"`
	Path    string        `json:"path" yaml:"path"`
	Sidecar string        `json:"sidecar" yaml:"sidecar"`
	Status  Status        `json:"status" yaml:"status"`
	Text    string        `json:"text,omitempty" yaml:"text,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns" yaml:"elapsed"`
	Message string        `json:"message" yaml:"message"`
	Err     error         `json:"-" yaml:"-"`
}

func newResult(job Job, status Status, message string) CaptionResult {
	return CaptionResult{
		Job:     job,
		Path:    job.SourcePath,
		Sidecar: job.SidecarPath,
		Status:  status,
		Message: message,
	}
}

func skippedResult(job Job) CaptionResult {
	return newResult(job, StatusSkipped, job.SourcePath+": already exists, skipped")
}

func canceledBeforeStart(job Job) CaptionResult {
	return newResult(job, StatusCanceled, job.SourcePath+": canceled before start")
}

func canceledResult(job Job, err error) CaptionResult {
	r := newResult(job, StatusCanceled, job.SourcePath+": canceled")
	r.Err = err
	return r
}

func failedResult(job Job, err error) CaptionResult {
	r := newResult(job, StatusFailed, fmt.Sprintf("%s: failed: %s", job.SourcePath, apperrors.PublicMessage(err)))
	r.Err = err
	return r
}

func writtenResult(job Job, text string, mode sidecar.Mode) CaptionResult {
	var msg string
	switch mode {
	case sidecar.ModeOverwritten:
		msg = fmt.Sprintf("%s: overwritten at %s", job.SourcePath, job.SidecarPath)
	case sidecar.ModePrepended:
		msg = fmt.Sprintf("%s: prepended to %s", job.SourcePath, job.SidecarPath)
	case sidecar.ModeAppended:
		msg = fmt.Sprintf("%s: appended to %s", job.SourcePath, job.SidecarPath)
	default:
		msg = fmt.Sprintf("%s: saved to %s", job.SourcePath, job.SidecarPath)
	}
	r := newResult(job, StatusSuccess, msg)
	r.Text = text
	return r
}

// Report aggregates a finished run.
type Report struct {
	RunID      string          `json:"run_id" yaml:"run_id"`
	Dir        string          `json:"dir" yaml:"dir"`
	Model      string          `json:"model" yaml:"model"`
	Status     RunStatus       `json:"status" yaml:"status"`
	Total      int             `json:"total" yaml:"total"`
	Succeeded  int             `json:"succeeded" yaml:"succeeded"`
	Skipped    int             `json:"skipped" yaml:"skipped"`
	Failed     int             `json:"failed" yaml:"failed"`
	Canceled   int             `json:"canceled" yaml:"canceled"`
	Restarts   int             `json:"restarts" yaml:"restarts"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
	Results    []CaptionResult `json:"results" yaml:"results"`
}

// Lines returns one outcome string per file, in report order.
func (r Report) Lines() []string {
	lines := make([]string, len(r.Results))
	for i, res := range r.Results {
		lines[i] = res.Message
	}
	return lines
}

// String joins Lines with newlines.
func (r Report) String() string {
	return strings.Join(r.Lines(), "\n")
}

// FailedPaths lists the files that did not get a caption because of an error.
func (r Report) FailedPaths() []string {
	var out []string
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res.Path)
		}
	}
	return out
}

// PendingPaths lists the files left without a caption, failed or canceled.
// They are what a retry needs to process.
func (r Report) PendingPaths() []string {
	var out []string
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusCanceled {
			out = append(out, res.Path)
		}
	}
	return out
}

func (r *Report) tally() {
	r.Total = len(r.Results)
	r.Succeeded, r.Skipped, r.Failed, r.Canceled = 0, 0, 0, 0
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			r.Succeeded++
		case StatusSkipped:
			r.Skipped++
		case StatusFailed:
			r.Failed++
		case StatusCanceled:
			r.Canceled++
		}
	}
	attempted := r.Total - r.Skipped
	unfinished := r.Failed + r.Canceled
	if attempted == 0 {
		r.Status = RunStatusSuccess
		return
	}
	r.Status = runStatusFromRecovery(recovery.CalculateStatus(unfinished, attempted))
}

const previewClusters = 60

// preview shortens caption text for log lines without splitting a grapheme.
func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if uniseg.GraphemeClusterCount(text) <= previewClusters {
		return text
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(text)
	for n := 0; n < previewClusters && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	return b.String() + "…"
}
