package scorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

const (
	maxExtLen    = 10
	maxStderrLen = 512
	waitDelay    = 2 * time.Second
)

// Exec runs an external analyzer per flow. The upload is written to a scratch
// file whose path is appended to the analyzer command line; stdout must carry
// a {score,status,factors} JSON object. The analyzer's status is relayed
// once it is known to belong to the flow; only the score is clamped.
type Exec struct {
	commands   map[models.DetectionType][]string
	timeout    time.Duration
	scratchDir string
}

func NewExec(cfg config.ScorerConfig) *Exec {
	dir := cfg.ScratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	return &Exec{
		commands: map[models.DetectionType][]string{
			models.DetectionVoice:    cfg.VoiceCommand,
			models.DetectionDeepfake: cfg.DeepfakeCommand,
		},
		timeout:    cfg.Timeout,
		scratchDir: dir,
	}
}

func (e *Exec) Name() string { return "exec" }

type analyzerOutput struct {
	Score   *float64 `json:"score"`
	Status  string   `json:"status"`
	Factors []string `json:"factors"`
}

func (e *Exec) Score(ctx context.Context, s Sample) (models.Verdict, error) {
	argv := e.commands[s.Flow]
	if len(argv) == 0 {
		return models.Verdict{}, fmt.Errorf("%w: %s", ErrUnsupportedFlow, s.Flow)
	}

	path := filepath.Join(e.scratchDir, fmt.Sprintf("%s-%s%s", s.Flow, uuid.NewString(), safeExt(s.FileName)))
	if err := os.WriteFile(path, s.Data, 0o600); err != nil {
		return models.Verdict{}, fmt.Errorf("write scratch file: %w", err)
	}
	defer removeScratch(path)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), argv[1:]...), path)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Verdict{}, fmt.Errorf("%w after %s", ErrAnalyzerTimeout, e.timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return models.Verdict{}, fmt.Errorf("%w: %w", ErrAnalyzerCanceled, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return models.Verdict{}, fmt.Errorf("%w: exit code %d: %s", ErrAnalyzerExit, exitErr.ExitCode(), trimStderr(stderr.String()))
		}
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrAnalyzerExit, err)
	}

	return parseAnalyzerOutput(s.Flow, stdout.Bytes())
}

func parseAnalyzerOutput(flow models.DetectionType, raw []byte) (models.Verdict, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return models.Verdict{}, ErrAnalyzerEmptyOutput
	}

	var out analyzerOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrAnalyzerMalformedOutput, err)
	}
	if out.Status == "error" {
		return models.Verdict{}, fmt.Errorf("%w: analyzer reported error: %s", ErrAnalyzerMalformedOutput, strings.Join(out.Factors, "; "))
	}
	if out.Score == nil {
		return models.Verdict{}, fmt.Errorf("%w: missing score", ErrAnalyzerMalformedOutput)
	}

	status := models.ResultStatus(strings.ToLower(strings.TrimSpace(out.Status)))
	if !models.ValidForFlow(flow, status) {
		return models.Verdict{}, fmt.Errorf("%w: status %q not valid for %s", ErrAnalyzerMalformedOutput, out.Status, flow)
	}

	factors := out.Factors
	if factors == nil {
		factors = []string{}
	}
	return models.Verdict{
		Score:   models.ClampScoreFloat(*out.Score),
		Status:  status,
		Factors: factors,
	}, nil
}

// safeExt keeps a short alphanumeric extension from the client file name.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func removeScratch(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove scratch file", "path", path, "error", err)
	}
}

func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrLen {
		s = s[:maxStderrLen] + "..."
	}
	return s
}
