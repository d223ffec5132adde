package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClientClosed = errors.New("tts: client closed")

// Connect_Config maps to the ElevenLabs multi-context websocket query
// parameters and auth options.
type Connect_Config struct {
	// BaseURL is the websocket base URL, e.g. "wss://api.elevenlabs.io".
	BaseURL string
	VoiceID string
	// APIKey is sent as the xi-api-key header.
	APIKey string

	ModelID      string
	OutputFormat string
	// AutoMode lets the server pick chunk boundaries; nil leaves its default.
	AutoMode *bool
}

const (
	Default_Base_URL      = "wss://api.elevenlabs.io"
	Default_Model_ID      = "eleven_multilingual_v2"
	Default_Output_Format = "mp3_44100_128"
)

func Build_URL(cfg Connect_Config) (string, error) {
	base := cfg.BaseURL
	if base == "" {
		base = Default_Base_URL
	}
	base = strings.TrimRight(base, "/")

	u, err := url.Parse(base + "/v1/text-to-speech/" + url.PathEscape(cfg.VoiceID) + "/multi-stream-input")
	if err != nil {
		return "", err
	}

	q := u.Query()
	if cfg.ModelID != "" {
		q.Set("model_id", cfg.ModelID)
	}
	if cfg.OutputFormat != "" {
		q.Set("output_format", cfg.OutputFormat)
	}
	if cfg.AutoMode != nil {
		q.Set("auto_mode", strconv.FormatBool(*cfg.AutoMode))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type Frame_Kind string

const (
	Frame_Audio   Frame_Kind = "audio"
	Frame_Final   Frame_Kind = "final"
	Frame_Unknown Frame_Kind = "unknown"
)

// Frame is one decoded server message.
type Frame struct {
	Kind       Frame_Kind
	Context_ID string
	Audio_B64  string
}

// serverMessage is either {"audio": ..., "contextId": ...} or
// {"isFinal": true, "contextId": ...}. Older servers spell it context_id.
type serverMessage struct {
	Audio      string `json:"audio"`
	IsFinal    bool   `json:"isFinal"`
	ContextID  string `json:"contextId"`
	Context_ID string `json:"context_id"`
}

func (m serverMessage) frame() Frame {
	f := Frame{Kind: Frame_Unknown, Context_ID: m.ContextID}
	if f.Context_ID == "" {
		f.Context_ID = m.Context_ID
	}
	switch {
	case m.Audio != "":
		f.Kind, f.Audio_B64 = Frame_Audio, m.Audio
	case m.IsFinal:
		f.Kind = Frame_Final
	}
	return f
}

// Client is one multi-context TTS websocket. The reader goroutine owns the
// frames channel and closes it when the socket ends.
type Client struct {
	conn   *websocket.Conn
	frames chan Frame
	errors chan error

	sendCh chan any
	done   chan struct{}
	once   sync.Once
	loops  sync.WaitGroup
}

func Dial(ctx context.Context, cfg Connect_Config) (*Client, error) {
	if cfg.VoiceID == "" {
		return nil, fmt.Errorf("missing voice_id")
	}
	headers := http.Header{}
	if cfg.APIKey != "" {
		headers.Set("xi-api-key", cfg.APIKey)
	}

	u, err := Build_URL(cfg)
	if err != nil {
		return nil, err
	}

	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.DialContext(ctx, u, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial tts socket: %w", err)
	}

	c := &Client{
		conn:   conn,
		frames: make(chan Frame, 256),
		errors: make(chan error, 16),
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
	c.startLoops(ctx)
	return c, nil
}

func (c *Client) Frames() <-chan Frame { return c.frames }
func (c *Client) Errors() <-chan error { return c.errors }

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"), time.Now().Add(250*time.Millisecond))
		err = c.conn.Close()
		go func() {
			c.loops.Wait()
			close(c.errors)
		}()
	})
	return err
}

func (c *Client) startLoops(ctx context.Context) {
	c.loops.Add(2)

	go func() {
		defer c.loops.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case msg := <-c.sendCh:
				if err := c.conn.WriteJSON(msg); err != nil {
					c.tryEmitErr(err)
					return
				}
			}
		}
	}()

	go func() {
		defer c.loops.Done()
		defer close(c.frames)
		for {
			var msg serverMessage
			if err := c.conn.ReadJSON(&msg); err != nil {
				var syntaxErr *json.SyntaxError
				if errors.As(err, &syntaxErr) {
					c.tryEmitErr(fmt.Errorf("tts: invalid json: %w", err))
					continue
				}
				select {
				case <-c.done:
				default:
					c.tryEmitErr(err)
				}
				return
			}
			select {
			case c.frames <- msg.frame():
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Client) tryEmitErr(err error) {
	if err == nil {
		return
	}
	select {
	case c.errors <- err:
	default:
	}
}

// Outgoing messages.

type initializeContext struct {
	Text      string `json:"text"`
	ContextID string `json:"context_id,omitempty"`
}

type sendText struct {
	Text      string `json:"text"`
	ContextID string `json:"context_id,omitempty"`
	Flush     bool   `json:"flush,omitempty"`
}

type closeSocket struct {
	CloseSocket bool `json:"close_socket"`
}

func (c *Client) Initialize_Context(ctx context.Context, contextID string) error {
	return c.send(ctx, initializeContext{Text: " ", ContextID: contextID})
}

func (c *Client) Send_Text(ctx context.Context, contextID, text string, flush bool) error {
	return c.send(ctx, sendText{Text: strings.ReplaceAll(text, "\r\n", "\n"), ContextID: contextID, Flush: flush})
}

func (c *Client) Close_Socket(ctx context.Context) error {
	return c.send(ctx, closeSocket{CloseSocket: true})
}

func (c *Client) send(ctx context.Context, v any) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	case c.sendCh <- v:
		return nil
	}
}
