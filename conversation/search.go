package conversation

import (
	"strings"
	"unicode"

	"github.com/catchmeifyoucaan/lagosai/stores"
)

const (
	Search_Current_Limit          = 20
	Search_Per_Conversation_Limit = 3
	Search_Library_Limit          = 50
	Snippet_Length                = 140
)

// Hit is one message matching a search. The snippet marks the match in bold.
type Hit struct {
	Conversation_ID string `json:"conversationId"`
	Message_ID      int64  `json:"messageId"`
	Title           string `json:"title"`
	Snippet         string `json:"snippet"`
	Current         bool   `json:"current"`
}

// Search finds messages containing q, ignoring case. Hits from the current
// conversation come first, then a few per other conversation.
func (s *Store) Search(q string) []Hit {
	needle := []rune(strings.TrimSpace(q))
	if len(needle) == 0 {
		return nil
	}
	for i, r := range needle {
		needle[i] = unicode.ToLower(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []Hit
	if i := s.indexOf(s.currentID); i >= 0 {
		hits = appendHits(hits, s.conversations[i], needle, Search_Current_Limit, true)
	}
	library := 0
	for _, c := range s.conversations {
		if c.ID == s.currentID {
			continue
		}
		n := len(hits)
		hits = appendHits(hits, c, needle, Search_Per_Conversation_Limit, false)
		library += len(hits) - n
		if library >= Search_Library_Limit {
			hits = hits[:len(hits)-(library-Search_Library_Limit)]
			break
		}
	}
	return hits
}

func appendHits(hits []Hit, c stores.Conversation, needle []rune, limit int, current bool) []Hit {
	found := 0
	for _, m := range c.Messages {
		if found == limit {
			break
		}
		text := []rune(m.Content)
		if indexFold(text, needle) < 0 {
			continue
		}
		hits = append(hits, Hit{
			Conversation_ID: c.ID,
			Message_ID:      m.ID,
			Title:           c.Title,
			Snippet:         snippet(text, needle),
			Current:         current,
		})
		found++
	}
	return hits
}

// snippet cuts text to Snippet_Length runes and bolds the first match inside it.
func snippet(text, needle []rune) string {
	if len(text) > Snippet_Length {
		text = text[:Snippet_Length]
	}
	i := indexFold(text, needle)
	if i < 0 {
		return string(text)
	}
	end := i + len(needle)
	return string(text[:i]) + "**" + string(text[i:end]) + "**" + string(text[end:])
}

// indexFold is a rune index of needle in text. needle is already lower case.
func indexFold(text, needle []rune) int {
	for i := 0; i+len(needle) <= len(text); i++ {
		match := true
		for j, r := range needle {
			if unicode.ToLower(text[i+j]) != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
