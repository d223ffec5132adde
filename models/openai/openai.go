package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/catchmeifyoucaan/lagosai/models"
	goopenai "github.com/sashabaranov/go-openai"
)

const (
	DefaultChatModel = "gpt-4o"
	DefaultMaxTokens = 1200
	ImageSize        = goopenai.CreateImageSize1024x1024
)

const provider = models.Provider_OpenAI

// OpenAI_Model covers GPT-4o chat and DALL-E 3 images.
type OpenAI_Model struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	// BaseURL overrides the API root, e.g. for an OpenAI-compatible proxy.
	BaseURL    string
	HTTPClient *http.Client
}

func New(apiKey string) *OpenAI_Model {
	return &OpenAI_Model{
		APIKey:      strings.TrimSpace(apiKey),
		Model:       DefaultChatModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: 0.7,
	}
}

func (o *OpenAI_Model) client() *goopenai.Client {
	cfg := goopenai.DefaultConfig(o.APIKey)
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if o.HTTPClient != nil {
		cfg.HTTPClient = o.HTTPClient
	}
	return goopenai.NewClientWithConfig(cfg)
}

func (o *OpenAI_Model) buildRequest(request models.Chat_Request, stream bool) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(request.History)+2)
	if request.System_Prompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: request.System_Prompt,
		})
	}
	for _, turn := range request.History {
		role := goopenai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: request.Query,
	})

	model := o.Model
	if model == "" {
		model = DefaultChatModel
	}
	return goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
		Stream:      stream,
	}
}

func (o *OpenAI_Model) precheck(query string) *models.Provider_Error {
	if strings.TrimSpace(query) == "" {
		return models.As_Provider_Error(provider, models.ErrEmptyQuery)
	}
	if !models.Valid_Key(provider, o.APIKey) {
		return models.Not_Configured_Error(provider)
	}
	return nil
}

// Chat performs a single chat completion.
func (o *OpenAI_Model) Chat(ctx context.Context, request models.Chat_Request) models.Result {
	if perr := o.precheck(request.Query); perr != nil {
		return models.Error_Result(perr)
	}

	resp, err := o.client().CreateChatCompletion(ctx, o.buildRequest(request, false))
	if err != nil {
		return models.Error_Result(classify(ctx, err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return models.Error_Result(models.New_Error(provider, models.Malformed_Response, "OpenAI returned invalid or missing content structure."))
	}
	return models.Text_Result(resp.Choices[0].Message.Content)
}

// Stream_Chat streams completion deltas until the server sends [DONE].
func (o *OpenAI_Model) Stream_Chat(ctx context.Context, request models.Chat_Request) (<-chan string, <-chan error) {
	respChan := make(chan string)
	errChan := make(chan error, 1)

	if perr := o.precheck(request.Query); perr != nil {
		errChan <- perr
		close(errChan)
		close(respChan)
		return respChan, errChan
	}

	go func() {
		defer close(respChan)
		defer close(errChan)

		stream, err := o.client().CreateChatCompletionStream(ctx, o.buildRequest(request, true))
		if err != nil {
			errChan <- classify(ctx, err)
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errChan <- classify(ctx, err)
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			content := response.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case respChan <- content:
			case <-ctx.Done():
				errChan <- models.Wrap_Error(provider, models.Cancelled, ctx.Err())
				return
			}
		}
	}()

	return respChan, errChan
}

// Generate_Image renders a DALL-E 3 image and returns its hosted URL.
func (o *OpenAI_Model) Generate_Image(ctx context.Context, request models.Media_Request) (models.Media_Result, error) {
	if perr := o.precheck(request.Prompt); perr != nil {
		return models.Media_Result{}, perr
	}

	style := models.Parse_Image_Style(request.Style)
	resp, err := o.client().CreateImage(ctx, goopenai.ImageRequest{
		Model:          goopenai.CreateImageModelDallE3,
		Prompt:         models.Decorate_Image_Prompt(request.Prompt, string(style)),
		N:              1,
		Size:           ImageSize,
		Quality:        goopenai.CreateImageQualityStandard,
		ResponseFormat: goopenai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return models.Media_Result{}, classify(ctx, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return models.Media_Result{}, models.New_Error(provider, models.Malformed_Response, "DALL-E returned invalid or missing image URL.")
	}
	return models.Media_Result{
		ImageURL: resp.Data[0].URL,
		Model:    fmt.Sprintf("DALL-E 3 (%s)", models.Image_Styles[style]),
	}, nil
}

// classify maps go-openai errors onto the provider taxonomy.
func classify(ctx context.Context, err error) *models.Provider_Error {
	if ctx.Err() != nil {
		return models.Wrap_Error(provider, models.Cancelled, ctx.Err())
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "content_policy_violation" {
			return &models.Provider_Error{Kind: models.Content_Blocked, Provider: provider, Status: apiErr.HTTPStatusCode, Detail: apiErr.Message, Err: err}
		}
		perr := models.Status_Error(provider, apiErr.HTTPStatusCode, apiErr.Message)
		perr.Err = err
		return perr
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		perr := models.Status_Error(provider, reqErr.HTTPStatusCode, "")
		perr.Err = err
		return perr
	}
	return models.As_Provider_Error(provider, err)
}
