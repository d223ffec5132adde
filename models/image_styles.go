package models

import "fmt"

type Image_Style string

const (
	Style_Photorealistic Image_Style = "photorealistic"
	Style_Artistic       Image_Style = "artistic"
	Style_Cyberpunk      Image_Style = "cyberpunk"
	Style_Anime          Image_Style = "anime"
)

const Default_Image_Style = Style_Photorealistic

var Image_Styles = map[Image_Style]string{
	Style_Photorealistic: "📸 Ultra-realistic",
	Style_Artistic:       "🎨 Artistic Nigerian",
	Style_Cyberpunk:      "🌃 Cyber-Lagos",
	Style_Anime:          "🎭 Anime style",
}

// Parse_Image_Style maps unknown values to the default style.
func Parse_Image_Style(s string) Image_Style {
	if _, ok := Image_Styles[Image_Style(s)]; ok {
		return Image_Style(s)
	}
	return Default_Image_Style
}

// Decorate_Image_Prompt wraps a user prompt in the Lagos scene framing used
// for every image model.
func Decorate_Image_Prompt(prompt string, style string) string {
	label := Image_Styles[Parse_Image_Style(style)]
	return fmt.Sprintf("Lagos, Nigeria scene based on: %q. Style: %s. Emphasize authentic Nigerian culture, tropical lighting, vibrant street life, unique Lagos architecture, and elements like danfo buses or keke napeps where appropriate. High quality, detailed, dynamic.", prompt, label)
}
