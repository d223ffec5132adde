// Package routing decides what a query is about and which provider should answer it.
package routing

import "regexp"

type Intent string

const (
	Intent_Visual    Intent = "visual"
	Intent_Video     Intent = "video"
	Intent_Location  Intent = "location"
	Intent_Sensitive Intent = "sensitive"
	Intent_General   Intent = "general"
)

type rule struct {
	intent  Intent
	pattern *regexp.Regexp
}

// Order is priority: the first matching rule wins.
var rules = []rule{
	{Intent_Video, regexp.MustCompile(`(?i)\b(video|animate|movie|clip)\b`)},
	{Intent_Visual, regexp.MustCompile(`(?i)\b(paint|draw|show|picture|image|create|generate|imagine|visualize)\b`)},
	{Intent_Sensitive, regexp.MustCompile(`(?i)\b(own lagos|who owns lagos|history of lagos|yoruba land|igbo land|political|politics|government|heritage|claims|controversy|origin of lagos)\b`)},
	{Intent_Location, regexp.MustCompile(`(?i)\b(lagos|nigeria|street|traffic|route|lekki|ikeja|victoria island|ikoyi|ajegunle)\b`)},
}

// Classify maps raw user text to an intent. It never fails; unmatched text is general.
func Classify(text string) Intent {
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.intent
		}
	}
	return Intent_General
}
