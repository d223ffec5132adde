package gemini

import (
	"time"

	"google.golang.org/genai"
)

const (
	DefaultChatModel  = "gemini-2.5-flash"
	DefaultImageModel = "imagen-3.0-generate-002"
	DefaultVideoModel = "veo-3.0-generate-preview"

	DefaultMaxOutputTokens int32 = 8192
	DefaultPollInterval          = 10 * time.Second
)

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
}
