package reconcile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/catchmeifyoucaan/lagosai/models"
)

// Max_Gist_Length caps the technical detail shown to the user.
const Max_Gist_Length = 200

var rawPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^error:\s*`),
	regexp.MustCompile(`(?i)^gemini api error:\s*`),
	regexp.MustCompile(`(?i)^gemini api streaming error:\s*`),
	regexp.MustCompile(`(?i)^openai api error:\s*\d*\s*`),
	regexp.MustCompile(`(?i)^claude api error:\s*\d*\s*`),
	regexp.MustCompile(`(?i)^dall-e api error:\s*\d*\s*`),
}

var settingsSuffix = regexp.MustCompile(`(?i)please check it in settings\.$`)

// Format_Error renders the apology shown in place of a failed answer.
func Format_Error(providerName, personaName string, err error) string {
	if providerName == "" {
		providerName = "The AI"
	}
	if personaName == "" {
		personaName = "Oracle"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ah, my apologies! It seems I couldn't process your request using **%s (%s)** at the moment.", providerName, personaName)

	if gist := Error_Gist(err); gist != "" {
		fmt.Fprintf(&b, "\n\n*Technical Gist: %s*", gist)
	}

	switch models.Kind_Of(err) {
	case models.Not_Configured, models.Unauthorized:
		fmt.Fprintf(&b, "\n\nTo use %s's full power, please ensure your API key for it is correctly entered and valid in the settings panel (⚙️).", providerName)
	}

	b.WriteString("\n\nIn the meantime, feel free to ask me anything else about Lagos! 😊")
	return b.String()
}

// Error_Gist is the sanitized, truncated one-line detail of err.
func Error_Gist(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var pe *models.Provider_Error
	if errors.As(err, &pe) {
		switch {
		case pe.Detail != "":
			msg = pe.Detail
		case pe.Err != nil:
			msg = pe.Err.Error()
		default:
			msg = strings.ReplaceAll(string(pe.Kind), "_", " ")
		}
	}

	msg = strings.TrimSpace(msg)
	for _, re := range rawPrefixes {
		msg = re.ReplaceAllString(msg, "")
	}
	msg = strings.TrimSpace(settingsSuffix.ReplaceAllString(msg, ""))
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}

	if utf8.RuneCountInString(msg) > Max_Gist_Length {
		msg = string([]rune(msg)[:Max_Gist_Length]) + "..."
	}
	return msg
}

// Media_Error_Content is the text of a failed image or video message.
func Media_Error_Content(kind string, err error) string {
	reason := Error_Gist(err)
	if reason == "" {
		reason = "An unknown error occurred."
	}
	return fmt.Sprintf("⚠️ Sorry, I couldn't generate the %s. Reason: %s", kind, reason)
}

// Vision_Error_Content is the text of a failed scene description.
func Vision_Error_Content(err error) string {
	reason := Error_Gist(err)
	if reason == "" {
		reason = "An unknown error occurred."
	}
	return "⚠️ Vision Analysis Failed: " + reason
}

// Media_Pending_Content is the placeholder text while media is generated.
func Media_Pending_Content(kind string) string {
	return fmt.Sprintf("🎨 Generating your %s...", kind)
}

func media_Success_Content(kind string) string {
	return fmt.Sprintf("Here is the %s you requested.", kind)
}
