package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/d60-Lab/trustcore/config"
)

// Profile 审核严格程度
type Profile string

const (
	ProfileGeneral Profile = "general"
	ProfileGuest   Profile = "guest"
)

// Valid 是否为已知档位
func (p Profile) Valid() bool { return p == ProfileGeneral || p == ProfileGuest }

var (
	ErrNotConfigured  = errors.New("semantic classifier not configured")
	ErrMalformed      = errors.New("malformed classifier response")
	ErrUnknownProfile = errors.New("unknown classifier profile")
)

// Result 外部分类器的判定
type Result struct {
	Safe   bool
	Reason string
}

// Classifier 语义安全检查
type Classifier interface {
	Classify(ctx context.Context, text string, profile Profile) (Result, error)
}

// Client 基于 chat-completions 协议的分类器客户端，不重试
type Client struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	http     *http.Client
}

// NewClient 构造客户端；endpoint 为空时每次调用返回 ErrNotConfigured
func NewClient(cfg config.ClassifierConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		timeout:  timeout,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Classify(ctx context.Context, text string, profile Profile) (Result, error) {
	if c.endpoint == "" {
		return Result{}, ErrNotConfigured
	}
	prompt, ok := prompts[profile]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("classifier read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("classifier status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(cr.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: no choices", ErrMalformed)
	}
	return ParseVerdict(cr.Choices[0].Message.Content)
}

// ParseVerdict 严格解析 {"safe": bool, "reason": string}，两个字段缺一不可
func ParseVerdict(content string) (Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &fields); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	rawSafe, ok := fields["safe"]
	if !ok {
		return Result{}, fmt.Errorf("%w: missing safe", ErrMalformed)
	}
	rawReason, ok := fields["reason"]
	if !ok {
		return Result{}, fmt.Errorf("%w: missing reason", ErrMalformed)
	}
	var res Result
	if err := json.Unmarshal(rawSafe, &res.Safe); err != nil || bytes.Equal(rawSafe, []byte("null")) {
		return Result{}, fmt.Errorf("%w: safe is not a boolean", ErrMalformed)
	}
	if err := json.Unmarshal(rawReason, &res.Reason); err != nil || bytes.Equal(rawReason, []byte("null")) {
		return Result{}, fmt.Errorf("%w: reason is not a string", ErrMalformed)
	}
	return res, nil
}
