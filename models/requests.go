package models

import "errors"

// ErrEmptyQuery is returned by every chat adapter before any I/O when the query is blank.
var ErrEmptyQuery = errors.New("query must not be empty")

// Turn is one prior exchange passed to a provider as conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Chat_Request is the provider-neutral chat envelope.
type Chat_Request struct {
	Query string `json:"query"`
	// System_Prompt may be empty, meaning "use the provider default".
	System_Prompt string `json:"system_prompt"`
	History       []Turn `json:"history,omitempty"`
	// Images ride along with Query. Only Gemini reads them.
	Images []Image_Part `json:"images,omitempty"`
}

// Image_Part is inline image data such as a camera frame.
type Image_Part struct {
	MIME_Type string `json:"mimeType"`
	Data      []byte `json:"data"`
}

// Media_Request carries an image or video prompt. Style only applies to images.
type Media_Request struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
}
