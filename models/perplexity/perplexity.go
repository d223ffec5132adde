package perplexity

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
	BaseURL          = "https://api.perplexity.ai/chat/completions"
	DefaultModel     = "sonar"
	DefaultMaxTokens = 1200
)

const provider = models.Provider_Perplexity

type Perplexity_Model struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string
	HTTPClient  *http.Client
}

func New(apiKey string) *Perplexity_Model {
	return &Perplexity_Model{
		APIKey:      strings.TrimSpace(apiKey),
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: 0.7,
	}
}

func (p *Perplexity_Model) Chat(ctx context.Context, request models.Chat_Request) models.Result {
	if perr := p.precheck(request); perr != nil {
		return models.Error_Result(perr)
	}

	resp, err := p.do(ctx, p.createRequest(request, false))
	if err != nil {
		return models.Error_Result(p.transportError(ctx, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Error_Result(p.transportError(ctx, err))
	}
	if resp.StatusCode != http.StatusOK {
		return models.Error_Result(statusError(resp.StatusCode, body))
	}

	var pr Perplexity_Response
	if err := json.Unmarshal(body, &pr); err != nil {
		return models.Error_Result(models.Wrap_Error(provider, models.Malformed_Response, err))
	}
	if len(pr.Choices) == 0 || pr.Choices[0].Message == nil || pr.Choices[0].Message.Content == "" {
		return models.Error_Result(models.New_Error(provider, models.Malformed_Response, "Perplexity invalid chat content"))
	}
	return models.Text_Result(pr.Choices[0].Message.Content)
}

func (p *Perplexity_Model) Stream_Chat(ctx context.Context, request models.Chat_Request) (<-chan string, <-chan error) {
	respChan := make(chan string)
	errChan := make(chan error, 1)

	if perr := p.precheck(request); perr != nil {
		errChan <- perr
		close(errChan)
		close(respChan)
		return respChan, errChan
	}

	go func() {
		defer close(respChan)
		defer close(errChan)

		resp, err := p.do(ctx, p.createRequest(request, true))
		if err != nil {
			errChan <- p.transportError(ctx, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errChan <- statusError(resp.StatusCode, body)
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				errChan <- p.transportError(ctx, fmt.Errorf("error reading stream: %w", err))
				return
			}
			eof := err == io.EOF

			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "data: ") {
				data := strings.TrimPrefix(line, "data: ")
				if data == "[DONE]" {
					return
				}

				var chunk Perplexity_Response
				if err := json.Unmarshal([]byte(data), &chunk); err != nil {
					errChan <- models.Wrap_Error(provider, models.Malformed_Response, err)
					return
				}
				if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil && chunk.Choices[0].Delta.Content != "" {
					select {
					case respChan <- chunk.Choices[0].Delta.Content:
					case <-ctx.Done():
						errChan <- models.Wrap_Error(provider, models.Cancelled, ctx.Err())
						return
					}
				}
			}

			if eof {
				return
			}
		}
	}()

	return respChan, errChan
}

func (p *Perplexity_Model) precheck(request models.Chat_Request) *models.Provider_Error {
	if strings.TrimSpace(request.Query) == "" {
		return models.As_Provider_Error(provider, models.ErrEmptyQuery)
	}
	if !models.Valid_Key(provider, p.APIKey) {
		return models.Not_Configured_Error(provider)
	}
	return nil
}

func (p *Perplexity_Model) createRequest(request models.Chat_Request, stream bool) Perplexity_Request {
	messages := make([]Message, 0, len(request.History)+2)
	if request.System_Prompt != "" {
		messages = append(messages, Message{Role: "system", Content: request.System_Prompt})
	}
	// Perplexity rejects consecutive turns from the same role.
	appendTurn := func(role, content string) {
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n\n" + content
			return
		}
		messages = append(messages, Message{Role: role, Content: content})
	}
	for _, turn := range request.History {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		role := "user"
		if turn.Role == "assistant" {
			role = "assistant"
		}
		appendTurn(role, turn.Content)
	}
	appendTurn("user", request.Query)

	model := p.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := p.MaxTokens
	temperature := p.Temperature
	return Perplexity_Request{
		Model:       model,
		Messages:    messages,
		Stream:      stream,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}
}

func (p *Perplexity_Model) do(ctx context.Context, body Perplexity_Request) (*http.Response, error) {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	p.setHeaders(req)

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func (p *Perplexity_Model) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
}

func (p *Perplexity_Model) transportError(ctx context.Context, err error) *models.Provider_Error {
	if ctx.Err() != nil {
		return models.Wrap_Error(provider, models.Cancelled, ctx.Err())
	}
	return models.As_Provider_Error(provider, err)
}

func statusError(code int, body []byte) *models.Provider_Error {
	var errResp ErrorResponse
	msg := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg = errResp.Error.Message
	}
	return models.Status_Error(provider, code, msg)
}
