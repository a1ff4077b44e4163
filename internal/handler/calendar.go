package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/service"
)

// CalendarHandler serves the caller's own events and their country's
// global holidays.
type CalendarHandler struct {
	calendar *service.CalendarService
	logger   *slog.Logger
}

func NewCalendarHandler(calendar *service.CalendarService, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, logger: logger}
}

// HTTP: GET /api/events
func (h *CalendarHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	events, err := h.calendar.ListEvents(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"events": events})
}

type eventRequest struct {
	Name          string     `json:"name"          validate:"required"`
	Date          model.Date `json:"date"`
	ProfileID     *string    `json:"profileId"`
	Notifications []int      `json:"notifications" validate:"max=3"`
}

func (req eventRequest) input() service.EventInput {
	return service.EventInput{
		Name:          req.Name,
		Date:          req.Date,
		ProfileID:     req.ProfileID,
		Notifications: req.Notifications,
	}
}

// HandleCreate adds an event.
//
// HTTP: POST /api/events
// REQUEST BODY: {"name": "Anniversary", "date": "2026-09-01", "notifications": [1, 7]}
func (h *CalendarHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	e, err := h.calendar.CreateEvent(r.Context(), currentUser(r), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{"event": e})
}

// HandleUpdate edits an event. For automatic birthday events only the
// notifications are taken from the body.
//
// HTTP: PUT /api/events/{id}
func (h *CalendarHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	e, err := h.calendar.UpdateEvent(r.Context(), currentUser(r), r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"event": e})
}

// HTTP: DELETE /api/events/{id}
func (h *CalendarHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.calendar.DeleteEvent(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

// HTTP: GET /api/events/global
func (h *CalendarHandler) HandleListGlobal(w http.ResponseWriter, r *http.Request) {
	events, err := h.calendar.ListGlobalEvents(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"events": events})
}
