// Package elaboration asks a generative-language service to expand the
// reason a user gives for an appointment.
package elaboration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/citafacil/citafacil/internal/metrics"
)

// Defaults for the Google Generative Language API.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

var (
	// ErrElaborationFailed wraps every transport, status and decode failure.
	ErrElaborationFailed = errors.New("elaboration failed")
	// ErrEmptyElaboration is returned when the service answered with no text.
	ErrEmptyElaboration = errors.New("elaboration is empty")
)

var promptTemplate = template.Must(template.New("prompt").Parse(`Eres un asistente de IA que ayuda a los usuarios a dar más detalles sobre el motivo de su cita.

Dado el motivo inicial del usuario, proporciona una explicación más detallada y elaborada.

Elabora la respuesta en español.

Motivo inicial: {{.Reason}}

Motivo elaborado:`))

// Prompt renders the instruction sent for reason.
func Prompt(reason string) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, struct{ Reason string }{reason}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// Config configures a Gateway.
type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
	Metrics    metrics.Recorder
	Logger     *slog.Logger
}

// Gateway calls the generateContent endpoint. It performs no retries and
// no input validation.
type Gateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// New creates a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid elaboration base url %q", cfg.BaseURL)
	}
	endpoint := base.JoinPath("v1beta", "models", cfg.Model+":generateContent")

	return &Gateway{
		endpoint: endpoint.String(),
		apiKey:   cfg.APIKey,
		client:   cfg.HTTPClient,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "elaboration"),
	}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type schema struct {
	Type       string            `json:"type"`
	Properties map[string]schema `json:"properties,omitempty"`
	Required   []string          `json:"required,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Output is the structured answer requested from the model.
type Output struct {
	Elaboration string `json:"elaboration"`
}

// Elaborate returns an expanded version of reason.
func (g *Gateway) Elaborate(ctx context.Context, reason string) (string, error) {
	start := time.Now()
	text, err := g.elaborate(ctx, reason)
	g.metrics.ObserveElaborationDuration(time.Since(start))
	if err != nil {
		g.metrics.IncElaborationFailed()
		g.logger.WarnContext(ctx, "elaboration failed", slog.String("error", err.Error()))
		return "", err
	}
	return text, nil
}

func (g *Gateway) elaborate(ctx context.Context, reason string) (string, error) {
	prompt, err := Prompt(reason)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrElaborationFailed, err)
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &schema{
				Type:       "OBJECT",
				Properties: map[string]schema{"elaboration": {Type: "STRING"}},
				Required:   []string{"elaboration"},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrElaborationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrElaborationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CitaFacil/1.0")
	if g.apiKey != "" {
		req.Header.Set("x-goog-api-key", g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrElaborationFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrElaborationFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("%w: HTTP %d %s: %s", ErrElaborationFailed, resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
		}
		return "", fmt.Errorf("%w: HTTP %d", ErrElaborationFailed, resp.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrElaborationFailed, err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrElaborationFailed, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmptyElaboration
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return parseOutput(sb.String())
}

// parseOutput extracts the elaboration from the model text. Replies that
// ignore the requested JSON shape are used verbatim.
func parseOutput(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var out Output
	if strings.HasPrefix(text, "{") && json.Unmarshal([]byte(text), &out) == nil {
		text = strings.TrimSpace(out.Elaboration)
	}
	if text == "" {
		return "", ErrEmptyElaboration
	}
	return text, nil
}
