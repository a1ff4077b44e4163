package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/gifteo/internal/service"
)

type CommentHandler struct {
	comments *service.CommentService
	logger   *slog.Logger
}

func NewCommentHandler(comments *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

// HTTP: GET /api/wishlists/{id}/comments
func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	comments, err := h.comments.List(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"comments": comments})
}

type commentRequest struct {
	Text string `json:"text" validate:"required"`
}

// HTTP: POST /api/wishlists/{id}/comments
func (h *CommentHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.comments.Add(r.Context(), currentUser(r), r.PathValue("id"), req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{"comment": c})
}
