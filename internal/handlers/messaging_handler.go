package handlers

import (
	"net/http"

	"fp-innova/internal/service"
)

// MessagingHandler handles chats, messages and chat attachments
type MessagingHandler struct {
	errorResponder
	svc           *service.MessagingService
	maxUploadSize int64
}

// NewMessagingHandler creates a new messaging handler
func NewMessagingHandler(svc *service.MessagingService, maxUploadSize int64, exposeErrors bool) *MessagingHandler {
	return &MessagingHandler{
		errorResponder: errorResponder{exposeErrors: exposeErrors},
		svc:            svc,
		maxUploadSize:  maxUploadSize,
	}
}

// ListChats lists the chats of the current user, most recent first
// @Summary List chats
// @Tags Messaging
// @Produce json
// @Success 200 {array} models.Chat
// @Router /chats [get]
func (h *MessagingHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	chats, err := h.svc.ListChats(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, chats)
}

// CreateChat opens a direct or group chat. An existing direct chat between
// the same two users is returned instead of a new one.
// @Summary Create chat
// @Tags Messaging
// @Accept json
// @Produce json
// @Param request body service.CreateChatRequest true "Chat"
// @Success 201 {object} models.Chat
// @Failure 403 {object} map[string]string "Messaging not allowed between these roles"
// @Router /chats [post]
func (h *MessagingHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.CreateChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chat, err := h.svc.CreateChat(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, chat)
}

// GetChat returns a chat the current user takes part in
// @Summary Get chat
// @Tags Messaging
// @Produce json
// @Param id path int true "Chat ID"
// @Success 200 {object} models.Chat
// @Router /chats/{id} [get]
func (h *MessagingHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	chat, err := h.svc.GetChat(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, chat)
}

// ListMessages pages backwards through a chat
// @Summary List messages
// @Tags Messaging
// @Produce json
// @Param id path int true "Chat ID"
// @Param before query int false "Only messages older than this message ID"
// @Param limit query int false "Page size" default(50)
// @Success 200 {array} models.Message
// @Router /chats/{id}/messages [get]
func (h *MessagingHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var before uint
	if b := queryUint(r, "before"); b != nil {
		before = *b
	}
	limit, _ := pagination(r, 50, 200)
	messages, err := h.svc.ListMessages(r.Context(), actor, id, before, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, messages)
}

// SendMessage posts a message to a chat
// @Summary Send message
// @Tags Messaging
// @Accept json
// @Produce json
// @Param id path int true "Chat ID"
// @Param request body service.SendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Router /chats/{id}/messages [post]
func (h *MessagingHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req service.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, msg)
}

// UploadAttachment stores a file and sends it as a file message
// @Summary Send file
// @Tags Messaging
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Chat ID"
// @Param file formData file true "Attachment"
// @Param content formData string false "Caption"
// @Success 201 {object} models.Message
// @Router /chats/{id}/files [post]
func (h *MessagingHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	file, header, ok := formFile(w, r, h.maxUploadSize)
	if !ok {
		return
	}
	defer file.Close()
	req, err := h.svc.UploadAttachment(r.Context(), actor, id, header.Filename, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req.Content = r.FormValue("content")
	msg, err := h.svc.SendMessage(r.Context(), actor, id, *req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, msg)
}

// DownloadAttachment streams a chat file to a participant
// @Summary Download chat file
// @Tags Messaging
// @Produce octet-stream
// @Param id path int true "Chat ID"
// @Param key path string true "File key"
// @Success 200 {file} file
// @Router /chats/{id}/files/{key} [get]
func (h *MessagingHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	key := r.PathValue("key")
	body, err := h.svc.OpenAttachment(r.Context(), actor, id, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer body.Close()
	streamFile(w, body, key, "", 0)
}

// MarkRead marks every message of a chat as read by the current user
// @Summary Mark chat read
// @Tags Messaging
// @Produce json
// @Param id path int true "Chat ID"
// @Success 200 {object} map[string]interface{}
// @Router /chats/{id}/read [post]
func (h *MessagingHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.svc.MarkRead(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"message": "Chat marked as read", "updated": n})
}
