package routing

import "github.com/catchmeifyoucaan/lagosai/models"

type Modality string

const (
	Modality_Chat  Modality = "chat"
	Modality_Image Modality = "image"
	Modality_Video Modality = "video"
)

var (
	textPriority  = []models.Provider_ID{models.Provider_Gemini, models.Provider_OpenAI, models.Provider_Claude, models.Provider_Perplexity}
	imagePriority = []models.Provider_ID{models.Provider_OpenAI, models.Provider_Gemini}
	videoPriority = []models.Provider_ID{models.Provider_Gemini}
)

var (
	imageCapable = map[models.Provider_ID]bool{models.Provider_OpenAI: true, models.Provider_Gemini: true}
	videoCapable = map[models.Provider_ID]bool{models.Provider_Gemini: true}
)

// Decision is the full routing result for one query.
type Decision struct {
	Intent   Intent             `json:"intent"`
	Provider models.Provider_ID `json:"provider"`
	Modality Modality           `json:"modality"`
}

// Select_Provider picks the provider that should serve text. A concrete
// override always wins, even when that provider is unavailable.
func Select_Provider(text string, availability models.Availability, override models.Provider_ID) models.Provider_ID {
	return Route(text, availability, override).Provider
}

// Route classifies text, selects a provider and decides which modality the
// chosen provider will serve.
func Route(text string, availability models.Availability, override models.Provider_ID) Decision {
	intent := Classify(text)

	provider := override
	if provider == "" || provider == models.Provider_Auto {
		provider = pick(intent, availability)
	}

	return Decision{Intent: intent, Provider: provider, Modality: modalityFor(intent, provider)}
}

func pick(intent Intent, availability models.Availability) models.Provider_ID {
	preferred, fallback := priorityFor(intent)
	if p, ok := firstAvailable(preferred, availability); ok {
		return p
	}
	// A configured provider outranks an unconfigured specialist, even if it can only answer in text.
	if p, ok := firstAvailable(textPriority, availability); ok {
		return p
	}
	return fallback
}

func priorityFor(intent Intent) ([]models.Provider_ID, models.Provider_ID) {
	switch intent {
	case Intent_Visual:
		return imagePriority, models.Provider_OpenAI
	case Intent_Video:
		return videoPriority, models.Provider_Gemini
	default:
		return textPriority, models.Provider_Gemini
	}
}

func firstAvailable(list []models.Provider_ID, availability models.Availability) (models.Provider_ID, bool) {
	for _, p := range list {
		if availability[p] {
			return p, true
		}
	}
	return "", false
}

func modalityFor(intent Intent, provider models.Provider_ID) Modality {
	switch {
	case intent == Intent_Video && videoCapable[provider]:
		return Modality_Video
	case intent == Intent_Visual && imageCapable[provider]:
		return Modality_Image
	default:
		return Modality_Chat
	}
}
