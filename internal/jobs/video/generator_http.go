package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	types "github.com/yungbote/avatarworld/internal/domain/jobs"
	"github.com/yungbote/avatarworld/internal/platform/ctxutil"
	"github.com/yungbote/avatarworld/internal/platform/httpx"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type generateRequest struct {
	JobID  string          `json:"job_id"`
	Type   string          `json:"type"`
	Prompt string          `json:"prompt"`
	Inputs json.RawMessage `json:"inputs,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// HTTPGenerator posts the job to a generation service and stores its JSON
// response as the result.
type HTTPGenerator struct {
	log        *logger.Logger
	url        string
	httpClient *http.Client
}

func NewHTTPGenerator(log *logger.Logger, url string, timeout time.Duration) (*HTTPGenerator, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("missing VIDEO_GENERATOR_URL")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPGenerator{
		log:        log.With("client", "VideoGenerator"),
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (g *HTTPGenerator) Generate(ctx context.Context, job *types.VideoJob) (any, error) {
	body, err := json.Marshal(generateRequest{
		JobID:  job.ID.String(),
		Type:   job.Type,
		Prompt: job.Prompt,
		Inputs: json.RawMessage(job.Inputs),
		Config: json.RawMessage(job.Config),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if td := ctxutil.GetTraceData(ctx); td != nil && td.TraceID != "" {
		req.Header.Set("X-Trace-Id", td.TraceID)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video generator: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("video generator read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("video generator: %w", httpx.NewStatusError(resp, raw))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("video generator returned invalid json")
	}
	g.log.Debug("Generation finished", "job_id", job.ID, "bytes", len(raw))
	return json.RawMessage(raw), nil
}
