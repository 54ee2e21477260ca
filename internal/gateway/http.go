package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/model"
)

// HTTPGateway talks to the center backend over its internal REST API.
// The request timeout lives here, not in the engine: a slow submit keeps
// the attempt in SUBMITTING until this transport gives up.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPGateway creates a gateway against the center backend.
// token is the service-to-service bearer token issued by the center.
func NewHTTPGateway(baseURL, token string, timeout time.Duration, log zerolog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "http_gateway").Logger(),
	}
}

type resolveCodeRequest struct {
	Code string `json:"code"`
}

type submitRequest struct {
	Answers []model.SubmittedAnswer `json:"answers"`
}

type gatewayErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ResolveCode implements Gateway.
func (g *HTTPGateway) ResolveCode(ctx context.Context, code string) (*model.ExamDefinition, error) {
	body, resp, err := g.post(ctx, "/internal/v1/exams/resolve-code", resolveCodeRequest{Code: code})
	if err != nil {
		return nil, fmt.Errorf("resolve code: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var exam model.ExamDefinition
		if err := json.Unmarshal(body, &exam); err != nil {
			return nil, fmt.Errorf("decode exam definition: %w", err)
		}
		if err := exam.Validate(); err != nil {
			return nil, fmt.Errorf("resolved exam definition is invalid: %w", err)
		}
		return &exam, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrCodeNotFound
	default:
		return nil, fmt.Errorf("resolve code: unexpected status %d", resp.StatusCode)
	}
}

// Submit implements Gateway.
func (g *HTTPGateway) Submit(ctx context.Context, examID int64, answers []model.SubmittedAnswer) (*model.SubmissionOutcome, error) {
	path := fmt.Sprintf("/internal/v1/exams/%d/submissions", examID)
	body, resp, err := g.post(ctx, path, submitRequest{Answers: answers})
	if err != nil {
		// Transport failure: connection refused, DNS, timeout, canceled.
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var outcome model.SubmissionOutcome
		if err := json.Unmarshal(body, &outcome); err != nil {
			return nil, &NetworkError{Err: fmt.Errorf("decode outcome: %w", err)}
		}
		if outcome.Status != model.OutcomeGraded && outcome.Status != model.OutcomePendingReview {
			return nil, &NetworkError{Err: fmt.Errorf("unknown outcome status %q", outcome.Status)}
		}
		return &outcome, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		var parsed gatewayErrorBody
		msg := "answer payload rejected"
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, &ValidationError{Message: msg}
	default:
		// 5xx and everything unexpected counts as retryable.
		return nil, &NetworkError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// post sends a JSON POST and returns the full body. The response body is
// always drained and closed so the connection can be reused.
func (g *HTTPGateway) post(ctx context.Context, path string, payload interface{}) ([]byte, *http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	return body, resp, nil
}
