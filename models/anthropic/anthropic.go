package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/catchmeifyoucaan/lagosai/models"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com/v1/messages"
	DefaultAPIVersion = "2023-06-01"
	DefaultModel      = "claude-3-sonnet-20240229"
	DefaultMaxTokens  = 1200
)

const provider = models.Provider_Claude

// Anthropic_Model talks to the Anthropic Messages API. Build one per call
// with New; it holds the credential it was given and nothing else.
type Anthropic_Model struct {
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	BaseURL     string
	HTTPClient  *http.Client
}

// New returns a client bound to apiKey. The key is validated lazily, on the
// first call, so an explicit user choice still surfaces a configuration error.
func New(apiKey string) *Anthropic_Model {
	temp := 0.7
	return &Anthropic_Model{
		APIKey:      strings.TrimSpace(apiKey),
		Model:       DefaultModel,
		Temperature: &temp,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Chat performs a single non-streaming request.
func (a *Anthropic_Model) Chat(ctx context.Context, request models.Chat_Request) models.Result {
	if perr := a.precheck(request); perr != nil {
		return models.Error_Result(perr)
	}

	resp, err := a.do(ctx, a.buildRequest(request, false))
	if err != nil {
		return models.Error_Result(a.transportError(ctx, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Error_Result(a.transportError(ctx, err))
	}
	if resp.StatusCode != http.StatusOK {
		return models.Error_Result(statusError(resp.StatusCode, body))
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return models.Error_Result(models.Wrap_Error(provider, models.Malformed_Response, err))
	}

	var text strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return models.Error_Result(models.New_Error(provider, models.Malformed_Response, "Claude returned invalid or missing content structure."))
	}
	return models.Text_Result(text.String())
}

// Stream_Chat streams text deltas. Both channels are closed when the stream ends;
// at most one error is delivered.
func (a *Anthropic_Model) Stream_Chat(ctx context.Context, request models.Chat_Request) (<-chan string, <-chan error) {
	respChan := make(chan string)
	errChan := make(chan error, 1)

	if perr := a.precheck(request); perr != nil {
		errChan <- perr
		close(errChan)
		close(respChan)
		return respChan, errChan
	}

	go func() {
		defer close(respChan)
		defer close(errChan)

		resp, err := a.do(ctx, a.buildRequest(request, true))
		if err != nil {
			errChan <- a.transportError(ctx, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errChan <- statusError(resp.StatusCode, body)
			return
		}

		if err := a.parseSSEStream(ctx, resp.Body, respChan); err != nil {
			errChan <- err
		}
	}()

	return respChan, errChan
}

// parseSSEStream reads Anthropic SSE events and forwards text deltas as they arrive.
func (a *Anthropic_Model) parseSSEStream(ctx context.Context, r io.Reader, respChan chan<- string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var raw struct {
			Type  string          `json:"type"`
			Delta json.RawMessage `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return models.Wrap_Error(provider, models.Malformed_Response, err)
		}

		switch raw.Type {
		case EventContentBlockDelta:
			var delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			if err := json.Unmarshal(raw.Delta, &delta); err != nil {
				return models.Wrap_Error(provider, models.Malformed_Response, err)
			}
			if delta.Type != "text_delta" || delta.Text == "" {
				continue
			}
			select {
			case respChan <- delta.Text:
			case <-ctx.Done():
				return models.Wrap_Error(provider, models.Cancelled, ctx.Err())
			}

		case EventError:
			var errResp ErrorResponse
			if err := json.Unmarshal([]byte(data), &errResp); err != nil {
				return models.Wrap_Error(provider, models.Malformed_Response, err)
			}
			return streamError(errResp)

		case EventMessageStop:
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return a.transportError(ctx, fmt.Errorf("error reading stream: %w", err))
	}
	return nil
}

func (a *Anthropic_Model) precheck(request models.Chat_Request) *models.Provider_Error {
	if strings.TrimSpace(request.Query) == "" {
		return models.As_Provider_Error(provider, models.ErrEmptyQuery)
	}
	if !models.Valid_Key(provider, a.APIKey) {
		return models.Not_Configured_Error(provider)
	}
	return nil
}

func (a *Anthropic_Model) do(ctx context.Context, body AnthropicRequest) (*http.Response, error) {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	baseURL := a.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	a.setHeaders(req)

	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func (a *Anthropic_Model) transportError(ctx context.Context, err error) *models.Provider_Error {
	if ctx.Err() != nil {
		return models.Wrap_Error(provider, models.Cancelled, ctx.Err())
	}
	return models.As_Provider_Error(provider, err)
}

// buildRequest constructs the Anthropic API request.
func (a *Anthropic_Model) buildRequest(request models.Chat_Request, stream bool) AnthropicRequest {
	messages := make([]AnthropicMsg, 0, len(request.History)+1)
	for _, turn := range request.History {
		role := "user"
		if turn.Role == "assistant" {
			role = "assistant"
		}
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		messages = append(messages, AnthropicMsg{Role: role, Content: turn.Content})
	}
	messages = append(messages, AnthropicMsg{Role: "user", Content: request.Query})

	model := a.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := a.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return AnthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    mergeConsecutiveMessages(messages),
		System:      request.System_Prompt,
		Stream:      stream,
		Temperature: a.Temperature,
	}
}

// mergeConsecutiveMessages merges consecutive messages with the same role.
// Anthropic requires strictly alternating user/assistant roles.
func mergeConsecutiveMessages(messages []AnthropicMsg) []AnthropicMsg {
	if len(messages) <= 1 {
		return messages
	}

	var result []AnthropicMsg
	for _, msg := range messages {
		if len(result) > 0 && result[len(result)-1].Role == msg.Role {
			prev := &result[len(result)-1]
			prev.Content = prev.Content + "\n\n" + msg.Content
		} else {
			result = append(result, msg)
		}
	}
	return result
}

// setHeaders sets required headers for Anthropic API requests.
func (a *Anthropic_Model) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", a.APIKey)
	req.Header.Set("anthropic-version", DefaultAPIVersion)
}

func statusError(code int, body []byte) *models.Provider_Error {
	var errResp ErrorResponse
	msg := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg = errResp.Error.Message
	}
	return models.Status_Error(provider, code, msg)
}

func streamError(errResp ErrorResponse) *models.Provider_Error {
	kind := models.Network_Failure
	switch errResp.Error.Type {
	case "authentication_error", "permission_error":
		kind = models.Unauthorized
	case "rate_limit_error":
		kind = models.Rate_Limited
	}
	return models.New_Error(provider, kind, errResp.Error.Message)
}
