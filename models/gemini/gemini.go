package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/catchmeifyoucaan/lagosai/models"
	"google.golang.org/genai"
)

const provider = models.Provider_Gemini

// Gemini_Model serves chat, Imagen images and Veo videos from one key.
type Gemini_Model struct {
	APIKey      string
	Model       string
	ImageModel  string
	VideoModel  string
	Temperature float32
	MaxTokens   int32

	// Poll_Interval is the delay between video operation checks.
	Poll_Interval time.Duration
	// Max_Wait bounds video generation. Zero waits for as long as ctx allows.
	Max_Wait time.Duration

	HTTPOptions genai.HTTPOptions
	HTTPClient  *http.Client
}

func New(apiKey string) *Gemini_Model {
	return &Gemini_Model{
		APIKey:        strings.TrimSpace(apiKey),
		Model:         DefaultChatModel,
		ImageModel:    DefaultImageModel,
		VideoModel:    DefaultVideoModel,
		Temperature:   0.7,
		MaxTokens:     DefaultMaxOutputTokens,
		Poll_Interval: DefaultPollInterval,
	}
}

func (g *Gemini_Model) client(ctx context.Context) (*genai.Client, *models.Provider_Error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.HTTPClient,
		HTTPOptions: g.HTTPOptions,
	})
	if err != nil {
		return nil, models.Wrap_Error(provider, models.Network_Failure, fmt.Errorf("failed to create Gemini client: %w", err))
	}
	return client, nil
}

func (g *Gemini_Model) precheck(text string) *models.Provider_Error {
	if strings.TrimSpace(text) == "" {
		return models.As_Provider_Error(provider, models.ErrEmptyQuery)
	}
	if !models.Valid_Key(provider, g.APIKey) {
		return models.Not_Configured_Error(provider)
	}
	return nil
}

func (g *Gemini_Model) generationConfig(systemPrompt string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.Temperature),
		MaxOutputTokens: g.MaxTokens,
		SafetySettings:  safetySettings,
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return cfg
}

// contents converts history into Gemini turns; assistant maps to "model".
func contents(request models.Chat_Request) []*genai.Content {
	out := make([]*genai.Content, 0, len(request.History)+1)
	for _, turn := range request.History {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if turn.Role == "assistant" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(turn.Content, role))
	}
	if len(request.Images) == 0 {
		return append(out, genai.NewContentFromText(request.Query, genai.RoleUser))
	}
	parts := make([]*genai.Part, 0, len(request.Images)+1)
	for _, img := range request.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIME_Type))
	}
	parts = append(parts, genai.NewPartFromText(request.Query))
	return append(out, genai.NewContentFromParts(parts, genai.RoleUser))
}

func (g *Gemini_Model) model(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func (g *Gemini_Model) Chat(ctx context.Context, request models.Chat_Request) models.Result {
	if perr := g.precheck(request.Query); perr != nil {
		return models.Error_Result(perr)
	}
	client, perr := g.client(ctx)
	if perr != nil {
		return models.Error_Result(perr)
	}

	resp, err := client.Models.GenerateContent(ctx, g.model(g.Model, DefaultChatModel), contents(request), g.generationConfig(request.System_Prompt))
	if err != nil {
		return models.Error_Result(classify(ctx, err))
	}
	if perr := checkResponse(resp); perr != nil {
		return models.Error_Result(perr)
	}
	text := resp.Text()
	if text == "" {
		return models.Error_Result(models.New_Error(provider, models.Malformed_Response, "Gemini API returned an invalid or unexpected text response structure."))
	}
	return models.Text_Result(text)
}

func (g *Gemini_Model) Stream_Chat(ctx context.Context, request models.Chat_Request) (<-chan string, <-chan error) {
	respChan := make(chan string)
	errChan := make(chan error, 1)

	if perr := g.precheck(request.Query); perr != nil {
		errChan <- perr
		close(errChan)
		close(respChan)
		return respChan, errChan
	}

	go func() {
		defer close(respChan)
		defer close(errChan)

		client, perr := g.client(ctx)
		if perr != nil {
			errChan <- perr
			return
		}

		stream := client.Models.GenerateContentStream(ctx, g.model(g.Model, DefaultChatModel), contents(request), g.generationConfig(request.System_Prompt))
		for chunk, err := range stream {
			if err != nil {
				errChan <- classify(ctx, err)
				return
			}
			if perr := checkChunk(chunk); perr != nil {
				errChan <- perr
				return
			}
			text := chunk.Text()
			if text == "" {
				continue
			}
			select {
			case respChan <- text:
			case <-ctx.Done():
				errChan <- models.Wrap_Error(provider, models.Cancelled, ctx.Err())
				return
			}
		}
	}()

	return respChan, errChan
}

// checkChunk rejects stream chunks that were blocked or ended without text.
func checkChunk(chunk *genai.GenerateContentResponse) *models.Provider_Error {
	if chunk == nil {
		return nil
	}
	if perr := blockReason(chunk); perr != nil {
		return perr
	}
	if len(chunk.Candidates) == 0 || chunk.Candidates[0] == nil {
		return nil
	}
	switch reason := chunk.Candidates[0].FinishReason; reason {
	case genai.FinishReasonSafety:
		return models.New_Error(provider, models.Content_Blocked, "Stream ended by Gemini's safety filters. Categories: "+blockedCategories(chunk.Candidates[0]))
	case genai.FinishReasonOther, genai.FinishReasonRecitation:
		if chunk.Text() == "" {
			return models.New_Error(provider, models.Malformed_Response, fmt.Sprintf("Gemini stream ended unexpectedly or provided empty content. Reason: %s.", reason))
		}
	}
	return nil
}

// checkResponse applies the non-streaming rules, where a missing candidate is itself malformed.
func checkResponse(resp *genai.GenerateContentResponse) *models.Provider_Error {
	if resp == nil {
		return models.New_Error(provider, models.Malformed_Response, "Gemini API returned an empty response.")
	}
	if perr := blockReason(resp); perr != nil {
		return perr
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return models.New_Error(provider, models.Malformed_Response, "Gemini API returned an empty or malformed response. Reason: Unknown/No Candidate.")
	}
	return checkChunk(resp)
}

func blockReason(resp *genai.GenerateContentResponse) *models.Provider_Error {
	pf := resp.PromptFeedback
	if pf == nil || pf.BlockReason == "" {
		return nil
	}
	detail := "Prompt was blocked. Reason: " + string(pf.BlockReason)
	if pf.BlockReasonMessage != "" {
		detail += " - " + pf.BlockReasonMessage
	}
	return models.New_Error(provider, models.Content_Blocked, detail)
}

func blockedCategories(c *genai.Candidate) string {
	var cats []string
	for _, r := range c.SafetyRatings {
		if r == nil {
			continue
		}
		if r.Probability == genai.HarmProbabilityNegligible || r.Probability == genai.HarmProbabilityLow {
			continue
		}
		cats = append(cats, strings.TrimPrefix(string(r.Category), "HARM_CATEGORY_"))
	}
	if len(cats) == 0 {
		return "Content policy."
	}
	return strings.Join(cats, ", ") + "."
}

// classify maps SDK and transport errors onto the provider taxonomy.
func classify(ctx context.Context, err error) *models.Provider_Error {
	if ctx.Err() != nil {
		return models.Wrap_Error(provider, models.Cancelled, ctx.Err())
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return models.As_Provider_Error(provider, err)
	}

	if isInvalidKey(apiErr) {
		perr := models.New_Error(provider, models.Unauthorized, "The provided Gemini API key is invalid or lacks permissions. Please check it in settings.")
		perr.Status = apiErr.Code
		perr.Err = err
		return perr
	}
	perr := models.Status_Error(provider, apiErr.Code, apiErr.Message)
	perr.Err = err
	return perr
}

func isInvalidKey(e genai.APIError) bool {
	msg := e.Message + " " + e.Status
	return strings.Contains(msg, "API key not valid") ||
		strings.Contains(msg, "API_KEY_INVALID") ||
		strings.Contains(strings.ToLower(msg), "permission_denied")
}
