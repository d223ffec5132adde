package lagosai

import (
	"fmt"
	"net/http"
	"time"

	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/models/anthropic"
	"github.com/catchmeifyoucaan/lagosai/models/gemini"
	"github.com/catchmeifyoucaan/lagosai/models/openai"
	"github.com/catchmeifyoucaan/lagosai/models/perplexity"
)

// Model_Factory builds short-lived provider clients from the credentials of
// the moment. Nothing is cached between calls, so a credential change can
// never race an in-flight request.
type Model_Factory interface {
	Chat_Model(id models.Provider_ID, creds models.Credentials) (models.Chat_Model, error)
	Image_Model(id models.Provider_ID, creds models.Credentials) (models.Image_Model, error)
	Video_Model(id models.Provider_ID, creds models.Credentials) (models.Video_Model, error)
}

// Default_Factory builds the real adapters.
type Default_Factory struct {
	Video_Max_Wait time.Duration
	// Base_URLs overrides the API root per provider, e.g. for a proxy.
	Base_URLs  map[models.Provider_ID]string
	HTTPClient *http.Client
}

func (f *Default_Factory) Chat_Model(id models.Provider_ID, creds models.Credentials) (models.Chat_Model, error) {
	switch id {
	case models.Provider_OpenAI:
		return f.openai(creds), nil
	case models.Provider_Gemini:
		return f.gemini(creds), nil
	case models.Provider_Claude:
		m := anthropic.New(creds.Claude)
		m.BaseURL = f.Base_URLs[id]
		m.HTTPClient = f.HTTPClient
		return m, nil
	case models.Provider_Perplexity:
		m := perplexity.New(creds.Perplexity)
		m.BaseURL = f.Base_URLs[id]
		m.HTTPClient = f.HTTPClient
		return m, nil
	}
	return nil, fmt.Errorf("unknown chat provider: %s", id)
}

func (f *Default_Factory) Image_Model(id models.Provider_ID, creds models.Credentials) (models.Image_Model, error) {
	switch id {
	case models.Provider_OpenAI:
		return f.openai(creds), nil
	case models.Provider_Gemini:
		return f.gemini(creds), nil
	}
	return nil, fmt.Errorf("%s cannot generate images", models.Display_Name(id))
}

func (f *Default_Factory) Video_Model(id models.Provider_ID, creds models.Credentials) (models.Video_Model, error) {
	if id == models.Provider_Gemini {
		return f.gemini(creds), nil
	}
	return nil, fmt.Errorf("%s cannot generate videos", models.Display_Name(id))
}

func (f *Default_Factory) openai(creds models.Credentials) *openai.OpenAI_Model {
	m := openai.New(creds.OpenAI)
	m.BaseURL = f.Base_URLs[models.Provider_OpenAI]
	m.HTTPClient = f.HTTPClient
	return m
}

func (f *Default_Factory) gemini(creds models.Credentials) *gemini.Gemini_Model {
	m := gemini.New(creds.Gemini)
	m.Max_Wait = f.Video_Max_Wait
	m.HTTPClient = f.HTTPClient
	if base := f.Base_URLs[models.Provider_Gemini]; base != "" {
		m.HTTPOptions.BaseURL = base
	}
	return m
}
