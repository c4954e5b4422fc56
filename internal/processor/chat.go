package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quill/internal/config"
)

const (
	defaultChatTimeout    = 60 * time.Second
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// chatProcessor produces versions through an OpenAI-compatible chat
// completion endpoint. Transient failures (429, 5xx, timeouts, empty
// completions) retry with exponential backoff, honoring Retry-After when the
// server sends one.
type chatProcessor struct {
	cfg        config.LLM
	httpClient *http.Client
	prompts    *promptSelector

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// chatOption customizes the chat backend; used by tests to pin the HTTP
// client and remove real sleeps.
type chatOption func(*chatProcessor)

func withHTTPClient(client *http.Client) chatOption {
	return func(p *chatProcessor) {
		if client != nil {
			p.httpClient = client
		}
	}
}

func withRetry(attempts int, baseDelay, maxDelay time.Duration) chatOption {
	return func(p *chatProcessor) {
		p.retryMaxAttempts = attempts
		p.retryBaseDelay = baseDelay
		p.retryMaxDelay = maxDelay
	}
}

func withSleeper(sleeper func(time.Duration)) chatOption {
	return func(p *chatProcessor) {
		p.sleeper = sleeper
	}
}

func newChatProcessor(cfg config.LLM, prompts *promptSelector, opts ...chatOption) *chatProcessor {
	timeout := defaultChatTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	p := &chatProcessor{
		cfg:              cfg,
		httpClient:       &http.Client{Timeout: timeout},
		prompts:          prompts,
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *chatProcessor) Name() string { return "chat:" + p.cfg.Model }

func (p *chatProcessor) Transform(ctx context.Context, in Input) (*Output, error) {
	prompt, variant := p.prompts.pick()
	body, err := p.completeText(ctx, "transform", prompt, userPromptFor(in))
	if err != nil {
		return nil, err
	}
	return &Output{
		Body: body,
		Metadata: map[string]string{
			"model":          p.cfg.Model,
			"prompt_variant": variant,
		},
	}, nil
}

func (p *chatProcessor) ReviewContent(ctx context.Context, in Input) (*Review, error) {
	content, err := p.completeText(ctx, "review", reviewPrompt, userPromptFor(in))
	if err != nil {
		return nil, err
	}
	var review Review
	if err := DecodeModelJSON(content, &review); err != nil {
		return nil, fmt.Errorf("review: parse payload: %w", err)
	}
	if review.Score < 0 {
		review.Score = 0
	}
	if review.Score > 1 {
		review.Score = 1
	}
	review.Notes = strings.TrimSpace(review.Notes)
	return &review, nil
}

func (p *chatProcessor) Edit(ctx context.Context, in Input) (*Output, error) {
	user := userPromptFor(in)
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		user += "\n\nReviewer notes:\n" + notes
	}
	body, err := p.completeText(ctx, "edit", editPrompt, user)
	if err != nil {
		return nil, err
	}
	return &Output{Body: body, Metadata: map[string]string{"model": p.cfg.Model}}, nil
}

func (p *chatProcessor) Refine(ctx context.Context, in Input) (*Output, error) {
	user := userPromptFor(in)
	if feedback := strings.TrimSpace(in.Notes); feedback != "" {
		user += "\n\nReader feedback:\n" + feedback
	}
	body, err := p.completeText(ctx, "refine", refinePrompt, user)
	if err != nil {
		return nil, err
	}
	return &Output{Body: body, Metadata: map[string]string{"model": p.cfg.Model}}, nil
}

func userPromptFor(in Input) string {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return in.Body
	}
	return "Title: " + title + "\n\n" + in.Body
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatResponseMessage `json:"message"`
		// Some providers return the streaming schema even when stream=false.
		Delta        chatResponseMessage `json:"delta"`
		Text         string              `json:"text"`
		FinishReason string              `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("chat request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type emptyContentError struct {
	Op           string
	FinishReason string
	Refusal      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, refusal=%q)", e.Op, e.FinishReason, e.Refusal)
}

func (p *chatProcessor) completeText(ctx context.Context, op, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", fmt.Errorf("%s: empty input body", op)
	}
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return "", fmt.Errorf("%s: api key required", op)
	}

	payload := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
	}

	attempts := p.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := p.sendOnce(ctx, op, payload)
		if err == nil {
			return content, nil
		}

		delay, retry := p.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", err
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return "", sleepErr
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (p *chatProcessor) sendOnce(ctx context.Context, op string, payload chatRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("chat request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("chat request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chat request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("chat request: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("chat request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}

	var finishReason, refusal string
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if content := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content, nil
		}
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", op)
	}
	return "", &emptyContentError{Op: op, FinishReason: finishReason, Refusal: refusal}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (p *chatProcessor) retryAttempts() int {
	if p.retryMaxAttempts <= 0 {
		return 1
	}
	return p.retryMaxAttempts
}

func (p *chatProcessor) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var emptyErr *emptyContentError
	if errors.As(err, &emptyErr) {
		return p.backoffDelay(attempt), true
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return p.capDelay(statusErr.RetryAfter), true
			}
			return p.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return p.backoffDelay(attempt), true
	}

	return 0, false
}

func (p *chatProcessor) backoffDelay(attempt int) time.Duration {
	base := p.retryBaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > p.retryMaxDelay/2 {
			delay = p.retryMaxDelay
			break
		}
		delay *= 2
	}
	return p.capDelay(delay)
}

func (p *chatProcessor) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.retryMaxDelay > 0 && delay > p.retryMaxDelay {
		return p.retryMaxDelay
	}
	return delay
}

func (p *chatProcessor) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.sleeper != nil {
		p.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// DecodeModelJSON decodes JSON from a model response, tolerating code fences
// and surrounding prose.
func DecodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return directErr
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return err
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	if start := strings.Index(trimmed, "["); start >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
