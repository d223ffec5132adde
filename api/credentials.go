package api

import (
	"strings"

	"github.com/catchmeifyoucaan/lagosai/models"
)

const mask_Prefix = "••••"

// mask_Key hides all but the last four characters of a key.
func mask_Key(key string) string {
	if key == "" {
		return ""
	}
	r := []rune(key)
	if len(r) <= 4 {
		return mask_Prefix
	}
	return mask_Prefix + string(r[len(r)-4:])
}

func mask_Credentials(c models.Credentials) models.Credentials {
	return models.Credentials{
		OpenAI:     mask_Key(c.OpenAI),
		Gemini:     mask_Key(c.Gemini),
		Claude:     mask_Key(c.Claude),
		Perplexity: mask_Key(c.Perplexity),
	}
}

// unmask_Credentials keeps the stored key wherever a client echoed back its
// masked form.
func unmask_Credentials(next, stored models.Credentials) models.Credentials {
	keep := func(n, s string) string {
		if strings.HasPrefix(n, mask_Prefix) && n == mask_Key(s) {
			return s
		}
		return n
	}
	return models.Credentials{
		OpenAI:     keep(next.OpenAI, stored.OpenAI),
		Gemini:     keep(next.Gemini, stored.Gemini),
		Claude:     keep(next.Claude, stored.Claude),
		Perplexity: keep(next.Perplexity, stored.Perplexity),
	}
}
