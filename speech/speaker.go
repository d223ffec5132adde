// Package speech turns a finished assistant reply into synthesized audio.
package speech

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Max_Spoken_Length caps how much of a reply is read aloud.
const Max_Spoken_Length = 300

var ErrNothingToSay = errors.New("speech: empty text")

// Audio_Chunk is one piece of synthesized audio, base64 encoded.
type Audio_Chunk struct {
	Context_ID string `json:"contextId"`
	Audio_B64  string `json:"audio,omitempty"`
	Final      bool   `json:"final,omitempty"`
}

// Speaker synthesizes text. Chunks arrive in order; the last one has Final set.
type Speaker interface {
	Speak(ctx context.Context, contextID, text string) (<-chan Audio_Chunk, <-chan error)
}

var (
	markupChars = regexp.MustCompile("[*#`]")
	markdownURL = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
)

// Clean_Text strips markdown and cuts the text to Max_Spoken_Length runes.
func Clean_Text(text string) string {
	text = markupChars.ReplaceAllString(text, "")
	text = markdownURL.ReplaceAllString(text, "$1")
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > Max_Spoken_Length {
		text = string([]rune(text)[:Max_Spoken_Length])
	}
	return text
}

// ElevenLabs speaks through the multi-context websocket, one socket per reply.
type ElevenLabs struct {
	Config Connect_Config
}

func New_ElevenLabs(apiKey, voiceID string) *ElevenLabs {
	return &ElevenLabs{Config: Connect_Config{
		APIKey:       apiKey,
		VoiceID:      voiceID,
		ModelID:      Default_Model_ID,
		OutputFormat: Default_Output_Format,
	}}
}

func (e *ElevenLabs) Speak(ctx context.Context, contextID, text string) (<-chan Audio_Chunk, <-chan error) {
	chunkChan := make(chan Audio_Chunk)
	errChan := make(chan error, 1)

	text = Clean_Text(text)
	if text == "" {
		errChan <- ErrNothingToSay
		close(chunkChan)
		close(errChan)
		return chunkChan, errChan
	}

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		client, err := Dial(ctx, e.Config)
		if err != nil {
			errChan <- err
			return
		}
		defer client.Close()

		if err := client.Initialize_Context(ctx, contextID); err != nil {
			errChan <- err
			return
		}
		if err := client.Send_Text(ctx, contextID, text, true); err != nil {
			errChan <- err
			return
		}

		for {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case err, ok := <-client.Errors():
				if ok && err != nil {
					errChan <- err
					return
				}
			case frame, ok := <-client.Frames():
				if !ok {
					errChan <- errors.New("speech: socket closed before final audio")
					return
				}
				if frame.Context_ID != "" && frame.Context_ID != contextID {
					continue
				}
				switch frame.Kind {
				case Frame_Audio:
					select {
					case chunkChan <- Audio_Chunk{Context_ID: contextID, Audio_B64: frame.Audio_B64}:
					case <-ctx.Done():
						errChan <- ctx.Err()
						return
					}
				case Frame_Final:
					_ = client.Close_Socket(ctx)
					select {
					case chunkChan <- Audio_Chunk{Context_ID: contextID, Final: true}:
					case <-ctx.Done():
					}
					return
				}
			}
		}
	}()

	return chunkChan, errChan
}
