// Package api exposes an Oracle over HTTP with gin.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/swaggo/swag"

	"github.com/catchmeifyoucaan/lagosai"
	"github.com/catchmeifyoucaan/lagosai/conversation"
	_ "github.com/catchmeifyoucaan/lagosai/docs"
	"github.com/catchmeifyoucaan/lagosai/export"
	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/reconcile"
	"github.com/catchmeifyoucaan/lagosai/sessions"
	"github.com/catchmeifyoucaan/lagosai/stores"
	"github.com/catchmeifyoucaan/lagosai/syncbridge"
)

const (
	Base_Path      = "/api/v1"
	User_Header    = "X-User-ID"
	Delivery_WS    = "ws"
	Delivery_JSON  = "json"
	Max_Frame_Size = 8 << 20
	Max_Body_Size  = 32 << 20
)

type Chat_Request struct {
	Query string `json:"query" binding:"required"`
}

type Chat_Accepted struct {
	Conversation_ID string `json:"conversationId"`
	Message_ID      int64  `json:"messageId"`
}

type Rename_Request struct {
	Title string `json:"title" binding:"required"`
}

type Error_Response struct {
	Error string `json:"error"`
}

// Settings_Request carries optional parts; an absent part is left unchanged.
type Settings_Request struct {
	Credentials json.RawMessage `json:"credentials,omitempty"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

type Settings_Response struct {
	Credentials  models.Credentials  `json:"credentials"`
	Preferences  lagosai.Preferences `json:"preferences"`
	Availability models.Availability `json:"availability"`
	Sync_UID     string              `json:"syncUid,omitempty"`
}

// Handler serves the routes of one Oracle.
type Handler struct {
	oracle   *lagosai.Oracle
	hub      *sessions.Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(oracle *lagosai.Oracle, hub *sessions.Hub, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stdout, "[api] ", log.LstdFlags)
	}
	return &Handler{
		oracle: oracle,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// NewRouter builds a gin engine with every route mounted under Base_Path.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	h.Register(router.Group(Base_Path))
	router.GET("/swagger/doc.json", h.swaggerDoc)
	return router
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/chat", h.chat)
	r.POST("/chat/stop", h.stop)
	r.GET("/chat/export", h.exportChat)
	r.POST("/vision", h.vision)

	r.GET("/conversations", h.listConversations)
	r.POST("/conversations", h.createConversation)
	r.PUT("/conversations/:id/current", h.switchConversation)
	r.PATCH("/conversations/:id", h.renameConversation)
	r.DELETE("/conversations/:id", h.deleteConversation)
	r.GET("/conversations/:id/messages", h.listMessages)
	r.GET("/search", h.search)

	r.POST("/share", h.share)
	r.GET("/shared/:token", h.shared)

	r.GET("/library/export", h.exportLibrary)
	r.POST("/library/import", h.importLibrary)
	r.GET("/library/schema", h.librarySchema)

	r.GET("/settings", h.getSettings)
	r.PUT("/settings", h.putSettings)
	r.GET("/availability", h.availability)

	r.POST("/sync/attach", h.attachSync)
	r.DELETE("/sync", h.detachSync)

	r.GET("/ws", h.serveWS)
}

// statusFor maps facade errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lagosai.ErrUnknownConversation),
		errors.Is(err, syncbridge.ErrUnknownConversation),
		errors.Is(err, stores.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lagosai.ErrInvalidTitle),
		errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, lagosai.ErrInvalidFrame),
		errors.Is(err, export.ErrInvalidLibrary):
		return http.StatusBadRequest
	case errors.Is(err, lagosai.ErrSyncRequired):
		return http.StatusConflict
	case errors.Is(err, lagosai.ErrSyncUnavailable),
		errors.Is(err, lagosai.ErrVisionUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, Error_Response{Error: err.Error()})
}

// chat godoc
// @Summary Send a query to the current conversation
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param request body Chat_Request true "Query"
// @Param delivery query string false "sse (default), ws or json"
// @Success 200 {string} string "SSE stream"
// @Success 202 {object} Chat_Accepted
// @Failure 400 {object} Error_Response
// @Router /chat [post]
func (h *Handler) chat(c *gin.Context) {
	var req Chat_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if c.Query("delivery") == Delivery_JSON {
		msg, err := h.oracle.Send_Once(c.Request.Context(), req.Query)
		if err != nil {
			abort(c, statusFor(err), err)
			return
		}
		c.JSON(http.StatusOK, msg)
		return
	}

	r, err := h.oracle.Send(c.Request.Context(), req.Query)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	h.deliver(c, r)
}

// deliver streams r as SSE, or hands it to the websocket clients when asked.
func (h *Handler) deliver(c *gin.Context, r *reconcile.Reconciler) {
	if c.Query("delivery") == Delivery_WS {
		go h.oracle.Forward(r)
		c.JSON(http.StatusAccepted, Chat_Accepted{Conversation_ID: r.Conversation_ID(), Message_ID: r.Message_ID()})
		return
	}

	sessions.Prepare_SSE(c)
	c.Status(http.StatusOK)
	writer := &sessions.GinSSEWriter{Context: c}
	if err := sessions.Stream_Reconciler(c.Request.Context(), r, writer, h.logger); err != nil {
		h.logger.Printf("Stream for %s ended early: %v", r.Conversation_ID(), err)
	}
}

// vision godoc
// @Summary Describe a camera frame into the current conversation
// @Tags chat
// @Accept image/jpeg
// @Produce text/event-stream
// @Param delivery query string false "sse (default) or ws"
// @Success 200 {string} string "SSE stream"
// @Success 202 {object} Chat_Accepted
// @Failure 400 {object} Error_Response
// @Failure 503 {object} Error_Response
// @Router /vision [post]
func (h *Handler) vision(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, Max_Frame_Size))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		abort(c, status, err)
		return
	}
	mimeType := c.ContentType()
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	r, err := h.oracle.Analyze_Frame(c.Request.Context(), data, mimeType)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	h.deliver(c, r)
}

// @Summary Stop the reply of the current conversation
// @Tags chat
// @Router /chat/stop [post]
func (h *Handler) stop(c *gin.Context) {
	id := h.oracle.Store().Current_ID()
	c.JSON(http.StatusOK, gin.H{"conversationId": id, "stopped": h.oracle.Stop(id)})
}

// @Summary List conversations
// @Tags conversations
// @Router /conversations [get]
func (h *Handler) listConversations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"conversations":         h.oracle.Store().List(),
		"currentConversationId": h.oracle.Store().Current_ID(),
	})
}

// @Summary Create a conversation
// @Tags conversations
// @Router /conversations [post]
func (h *Handler) createConversation(c *gin.Context) {
	c.JSON(http.StatusCreated, h.oracle.New_Conversation())
}

// @Summary Make a conversation current
// @Tags conversations
// @Param id path string true "Conversation ID"
// @Router /conversations/{id}/current [put]
func (h *Handler) switchConversation(c *gin.Context) {
	if err := h.oracle.Switch(c.Param("id")); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Rename a conversation
// @Tags conversations
// @Param id path string true "Conversation ID"
// @Param request body Rename_Request true "Title"
// @Router /conversations/{id} [patch]
func (h *Handler) renameConversation(c *gin.Context) {
	var req Rename_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	id := c.Param("id")
	if err := h.oracle.Rename(id, req.Title); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	conv, _ := h.oracle.Store().Get(id)
	c.JSON(http.StatusOK, conv)
}

// @Summary Delete a conversation
// @Tags conversations
// @Param id path string true "Conversation ID"
// @Router /conversations/{id} [delete]
func (h *Handler) deleteConversation(c *gin.Context) {
	if err := h.oracle.Delete(c.Param("id")); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List the messages of a conversation
// @Tags conversations
// @Param id path string true "Conversation ID"
// @Router /conversations/{id}/messages [get]
func (h *Handler) listMessages(c *gin.Context) {
	conv, ok := h.oracle.Store().Get(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, lagosai.ErrUnknownConversation)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": conv.Messages})
}

// @Summary Search the current chat and the library
// @Tags conversations
// @Param q query string true "Text to find"
// @Router /search [get]
func (h *Handler) search(c *gin.Context) {
	hits := h.oracle.Store().Search(c.Query("q"))
	if hits == nil {
		hits = []conversation.Hit{}
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

// @Summary Share the current conversation
// @Tags sync
// @Router /share [post]
func (h *Handler) share(c *gin.Context) {
	link, err := h.oracle.Share(c.Request.Context())
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		abort(c, status, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"link": link})
}

// @Summary Read a shared conversation
// @Tags sync
// @Param token path string true "Share token"
// @Router /shared/{token} [get]
func (h *Handler) shared(c *gin.Context) {
	doc, err := h.oracle.Shared(c.Request.Context(), c.Param("token"))
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// @Summary Export every conversation
// @Tags library
// @Router /library/export [get]
func (h *Handler) exportLibrary(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.oracle.Export_Library(&buf); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	attach(c, export.Library_File_Name(time.Now()), buf.Bytes())
}

// @Summary Replace every conversation with a library file
// @Tags library
// @Router /library/import [post]
func (h *Handler) importLibrary(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, Max_Body_Size)
	n, err := h.oracle.Import_Library(body)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		abort(c, status, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n, "currentConversationId": h.oracle.Store().Current_ID()})
}

// @Summary JSON schema of the library file
// @Tags library
// @Router /library/schema [get]
func (h *Handler) librarySchema(c *gin.Context) {
	schema, err := lagosai.Library_Schema()
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/schema+json", schema)
}

// @Summary Export the current conversation
// @Tags library
// @Router /chat/export [get]
func (h *Handler) exportChat(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.oracle.Export_Chat(&buf); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	attach(c, export.Chat_File_Name(time.Now()), buf.Bytes())
}

func attach(c *gin.Context, name string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/json", data)
}

func (h *Handler) settings() Settings_Response {
	return Settings_Response{
		Credentials:  mask_Credentials(h.oracle.Credentials()),
		Preferences:  h.oracle.Preferences(),
		Availability: h.oracle.Availability(),
		Sync_UID:     h.oracle.Sync_UID(),
	}
}

// @Summary Read settings with masked credentials
// @Tags settings
// @Success 200 {object} Settings_Response
// @Router /settings [get]
func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings())
}

// @Summary Write credentials and preferences
// @Tags settings
// @Param request body Settings_Request true "Settings"
// @Success 200 {object} Settings_Response
// @Failure 400 {object} Error_Response
// @Router /settings [put]
func (h *Handler) putSettings(c *gin.Context) {
	var req Settings_Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	prefs := h.oracle.Preferences()
	if len(req.Preferences) > 0 {
		if err := json.Unmarshal(req.Preferences, &prefs); err != nil {
			abort(c, http.StatusBadRequest, fmt.Errorf("invalid preferences: %w", err))
			return
		}
	}
	var creds models.Credentials
	current := h.oracle.Credentials()
	if len(req.Credentials) > 0 {
		creds = current
		if err := json.Unmarshal(req.Credentials, &creds); err != nil {
			abort(c, http.StatusBadRequest, fmt.Errorf("invalid credentials: %w", err))
			return
		}
	}

	if len(req.Preferences) > 0 {
		h.oracle.Set_Preferences(prefs)
	}
	if len(req.Credentials) > 0 {
		h.oracle.Set_Credentials(unmask_Credentials(creds, current))
	}
	c.JSON(http.StatusOK, h.settings())
}

// @Summary Provider availability
// @Tags settings
// @Router /availability [get]
func (h *Handler) availability(c *gin.Context) {
	c.JSON(http.StatusOK, h.oracle.Availability())
}

// @Summary Attach sync for the user in X-User-ID
// @Tags sync
// @Param X-User-ID header string true "User ID"
// @Router /sync/attach [post]
func (h *Handler) attachSync(c *gin.Context) {
	uid := strings.TrimSpace(c.GetHeader(User_Header))
	if uid == "" {
		abort(c, http.StatusBadRequest, fmt.Errorf("missing %s header", User_Header))
		return
	}
	if err := h.oracle.Attach_Sync(c.Request.Context(), uid); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"syncUid": uid})
}

// @Summary Detach sync
// @Tags sync
// @Router /sync [delete]
func (h *Handler) detachSync(c *gin.Context) {
	h.oracle.Detach_Sync()
	c.Status(http.StatusNoContent)
}

// @Summary Websocket of conversation changes, reply events and audio
// @Tags chat
// @Router /ws [get]
func (h *Handler) serveWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	h.oracle.Serve_Client(h.hub, conn)
}

func (h *Handler) swaggerDoc(c *gin.Context) {
	doc, err := swag.ReadDoc()
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(doc))
}
