package lagosai

import (
	"log"

	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/personas"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

// Preferences are the per-installation settings. Each one lives under its
// own cache key.
type Preferences struct {
	Dark_Mode     bool               `json:"darkMode"`
	Sound_Enabled bool               `json:"soundEnabled"`
	Persona_Key   string             `json:"selectedPersonaKey"`
	Provider      models.Provider_ID `json:"selectedAI"`
	Image_Style   models.Image_Style `json:"imageStyle"`
}

func Default_Preferences() Preferences {
	return Preferences{
		Dark_Mode:     true,
		Sound_Enabled: true,
		Persona_Key:   personas.Default_Key,
		Provider:      models.Provider_Auto,
		Image_Style:   models.Default_Image_Style,
	}
}

// Normalized maps unknown values back to their defaults.
func (p Preferences) Normalized() Preferences {
	if !personas.Valid(p.Persona_Key) {
		p.Persona_Key = personas.Default_Key
	}
	p.Provider = models.Parse_Provider_ID(string(p.Provider))
	p.Image_Style = models.Parse_Image_Style(string(p.Image_Style))
	return p
}

// load_Preferences reads every preference. A missing or corrupt entry keeps
// its default.
func load_Preferences(cache stores.Cache, logger *log.Logger) Preferences {
	p := Default_Preferences()
	read := func(key string, v any) {
		if _, err := stores.GetJSON(cache, key, v); err != nil {
			logger.Printf("Ignoring %s: %v", key, err)
		}
	}

	dark, sound := p.Dark_Mode, p.Sound_Enabled
	read(stores.KeyDarkMode, &dark)
	read(stores.KeySoundEnabled, &sound)
	p.Dark_Mode, p.Sound_Enabled = dark, sound

	var persona, provider, style string
	read(stores.KeySelectedPersona, &persona)
	read(stores.KeySelectedProvider, &provider)
	read(stores.KeyImageStyle, &style)
	if persona != "" {
		p.Persona_Key = persona
	}
	if provider != "" {
		p.Provider = models.Provider_ID(provider)
	}
	if style != "" {
		p.Image_Style = models.Image_Style(style)
	}
	return p.Normalized()
}

func save_Preferences(cache stores.Cache, p Preferences) error {
	writes := []struct {
		key string
		v   any
	}{
		{stores.KeyDarkMode, p.Dark_Mode},
		{stores.KeySoundEnabled, p.Sound_Enabled},
		{stores.KeySelectedPersona, p.Persona_Key},
		{stores.KeySelectedProvider, string(p.Provider)},
		{stores.KeyImageStyle, string(p.Image_Style)},
	}
	for _, w := range writes {
		if err := stores.PutJSON(cache, w.key, w.v); err != nil {
			return err
		}
	}
	return nil
}

func load_Credentials(cache stores.Cache, logger *log.Logger) models.Credentials {
	var creds models.Credentials
	if _, err := stores.GetJSON(cache, stores.KeyCredentials, &creds); err != nil {
		logger.Printf("Ignoring stored credentials: %v", err)
		return models.Credentials{}
	}
	return creds.Trimmed()
}
