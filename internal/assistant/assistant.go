// Package assistant talks to an Ollama server to turn SQL Server telemetry
// into a short remediation summary.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/yanizio/sqlscope/internal/config"
	"github.com/yanizio/sqlscope/internal/metrics"
)

const (
	requestTimeout = 60 * time.Second
	instruction    = "Provide a concise summary with actionable remediation steps."
)

// Result is what Analyze returns to API callers.
type Result struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Analyzer is bound to one AssistantSettings snapshot.
type Analyzer struct {
	settings config.AssistantSettings
	http     *retryablehttp.Client
}

// New returns an Analyzer that retries transient failures.
func New(s config.AssistantSettings) *Analyzer {
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	c.HTTPClient.Timeout = requestTimeout
	c.RetryMax = 2
	c.Logger = leveled{zap.S()}
	return &Analyzer{settings: s, http: c}
}

// BuildPrompt renders the markdown prompt sent to the model.  Each metric
// is written as one compact JSON line.
func BuildPrompt(title string, metricsIn []map[string]any, issues string) string {
	lines := []string{"# " + title, instruction}
	if issues != "" {
		lines = append(lines, "Known issues or context: "+issues)
	}
	lines = append(lines, "Metrics:")
	for _, m := range metricsIn {
		b, err := json.Marshal(m)
		if err != nil {
			b = []byte(fmt.Sprint(m))
		}
		lines = append(lines, "- "+string(b))
	}
	return strings.Join(lines, "\n")
}

// Analyze asks the model for a summary of metricsIn.
func (a *Analyzer) Analyze(ctx context.Context, title string, metricsIn []map[string]any, issues string) (res Result, err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues("ollama", metrics.Result(err)).
			Observe(time.Since(start).Seconds())
	}()

	prompt := BuildPrompt(title, metricsIn, issues)
	body, err := json.Marshal(generateRequest{
		Model:  a.settings.Model,
		Prompt: prompt,
		Options: generateOptions{
			Temperature: a.settings.Temperature,
			NumPredict:  a.settings.MaxTokens,
		},
	})
	if err != nil {
		return Result{}, err
	}

	url := strings.TrimRight(a.settings.Host, "/") + "/api/generate"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Result{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	zap.S().Debugw("sending prompt to ollama", "model", a.settings.Model, "metrics", len(metricsIn))
	resp, err := a.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Result{}, fmt.Errorf("ollama generate: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode generate response: %w", err)
	}
	return Result{Model: a.settings.Model, Prompt: prompt, Response: out.Response}, nil
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
