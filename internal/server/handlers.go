package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tutorlane/scheduler/internal/clock"
	"github.com/tutorlane/scheduler/internal/model"
	"github.com/tutorlane/scheduler/internal/repository"
	"github.com/tutorlane/scheduler/internal/service"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type Handler struct {
	scheduling *service.SchedulingService
	templates  *service.TemplateService
	sessions   repository.SessionCatalog
	audit      repository.AuditStore
	clock      clock.Clock
	logger     *zap.Logger
}

func NewHandler(
	scheduling *service.SchedulingService,
	templates *service.TemplateService,
	sessions repository.SessionCatalog,
	audit repository.AuditStore,
	clk clock.Clock,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		scheduling: scheduling,
		templates:  templates,
		sessions:   sessions,
		audit:      audit,
		clock:      clk,
		logger:     logger,
	}
}

// respondError переводит ошибки движка в HTTP-статусы.
// Проигранная гонка за слот — это 409 с подсказкой выбрать другое время.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "this time was just taken, please choose another"})
	case errors.Is(err, model.ErrSlotBooked):
		c.JSON(http.StatusConflict, gin.H{"error": "slot has an active booking"})
	case errors.Is(err, model.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "operation is not allowed in the current status"})
	case errors.Is(err, model.ErrInvalidHour):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "hour is outside the bookable range"})
	case errors.Is(err, model.ErrPastDate):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "slot time is in the past"})
	case errors.Is(err, model.ErrTooEarly):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "lesson has not started yet"})
	case errors.Is(err, model.ErrEmptySource):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "source day has no available hours"})
	case errors.Is(err, model.ErrSessionUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "session is not available for booking"})
	case errors.Is(err, model.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.Local)
}

type slotRequest struct {
	Date string `json:"date" binding:"required"`
	Hour int    `json:"hour" binding:"required"`
}

// POST /api/tutor/slots
func (h *Handler) AddSlot(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	var req slotRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, want YYYY-MM-DD"})
		return
	}

	slot, err := h.scheduling.AddSlot(c.Request.Context(), actor.ID, date, req.Hour)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, slot)
}

// DELETE /api/tutor/slots?date=YYYY-MM-DD&hour=9
func (h *Handler) RemoveSlot(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	date, err := parseDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, want YYYY-MM-DD"})
		return
	}

	hour, err := strconv.Atoi(c.Query("hour"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hour"})
		return
	}

	if err := h.scheduling.RemoveSlot(c.Request.Context(), actor.ID, date, hour); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GET /api/tutors/:id/slots?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) TutorSchedule(c *gin.Context) {
	tutorID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tutor id"})
		return
	}

	from, err := parseDate(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}

	to, err := parseDate(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}

	slots, err := h.scheduling.TutorSchedule(c.Request.Context(), tutorID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, slots)
}

type templateDayRequest struct {
	Hours []int `json:"hours"`
}

// PUT /api/tutor/template/:weekday
func (h *Handler) SetTemplateDay(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	weekday, err := strconv.Atoi(c.Param("weekday"))
	if err != nil || weekday < 0 || weekday > 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid weekday, want 0 (Sunday) - 6 (Saturday)"})
		return
	}

	var req templateDayRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.templates.SetPattern(c.Request.Context(), actor.ID, time.Weekday(weekday), req.Hours); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GET /api/tutor/template
func (h *Handler) GetTemplate(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	template, err := h.templates.Pattern(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

type materializeRequest struct {
	WeekStart string `json:"week_start" binding:"required"`
}

// POST /api/tutor/template/materialize
func (h *Handler) Materialize(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	var req materializeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week_start date"})
		return
	}

	created, err := h.templates.Materialize(c.Request.Context(), actor.ID, weekStart)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"created": created, "count": len(created)})
}

type copyDayRequest struct {
	SourceDate string `json:"source_date" binding:"required"`
	TargetDate string `json:"target_date" binding:"required"`
}

// POST /api/tutor/slots/copy
func (h *Handler) CopyDay(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	var req copyDayRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, err := parseDate(req.SourceDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source_date"})
		return
	}

	target, err := parseDate(req.TargetDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_date"})
		return
	}

	applied, err := h.templates.CopyDay(c.Request.Context(), actor.ID, source, target)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"applied": applied, "count": len(applied)})
}

type bulkCreateRequest struct {
	Weekday int `json:"weekday"`
	Hour    int `json:"hour" binding:"required"`
	Weeks   int `json:"weeks" binding:"required"`
}

// POST /api/tutor/slots/bulk
func (h *Handler) BulkCreate(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	var req bulkCreateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Weekday < 0 || req.Weekday > 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid weekday, want 0 (Sunday) - 6 (Saturday)"})
		return
	}

	created, err := h.templates.BulkCreate(c.Request.Context(), actor.ID, time.Weekday(req.Weekday), req.Hour, req.Weeks)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"created": created, "count": len(created)})
}

// DELETE /api/tutor/slots/future
func (h *Handler) ClearFuture(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	removed, skipped, err := h.templates.ClearFuture(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed, "skipped_booked": skipped})
}

// GET /api/tutor/stats
func (h *Handler) Stats(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	stats, err := h.scheduling.Stats(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GET /api/tutor/audit?since_days=7
func (h *Handler) AuditHistory(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	sinceDays := 7
	if raw := c.Query("since_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since_days"})
			return
		}
		sinceDays = n
	}

	since := h.clock.Now().AddDate(0, 0, -sinceDays)
	entries, err := h.audit.History(c.Request.Context(), actor.ID, since)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

type sessionRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Price       int    `json:"price" binding:"required"`
}

// POST /api/tutor/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	var req sessionRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Price < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must not be negative"})
		return
	}

	session := &model.Session{
		TutorID:     actor.ID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		IsActive:    true,
	}

	if err := h.sessions.Create(c.Request.Context(), session); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GET /api/tutors/:id/sessions
func (h *Handler) TutorSessions(c *gin.Context) {
	tutorID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tutor id"})
		return
	}

	sessions, err := h.sessions.ListByTutor(c.Request.Context(), tutorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}

type bookRequest struct {
	TutorID   int64             `json:"tutor_id" binding:"required"`
	SessionID int64             `json:"session_id" binding:"required"`
	Date      string            `json:"date" binding:"required"`
	Hour      int               `json:"hour" binding:"required"`
	Contact   model.ContactInfo `json:"contact"`
}

// POST /api/bookings
func (h *Handler) Book(c *gin.Context) {
	actor := actorFrom(c)
	if actor.Role != RoleLearner {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	var req bookRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, want YYYY-MM-DD"})
		return
	}

	booking, err := h.scheduling.Book(c.Request.Context(), actor.ID, req.TutorID, req.SessionID, date, req.Hour, req.Contact)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/bookings/:id/confirm
func (h *Handler) ConfirmBooking(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	booking, err := h.scheduling.Confirm(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// POST /api/bookings/:id/complete
func (h *Handler) CompleteBooking(c *gin.Context) {
	actor, ok := requireTutor(c)
	if !ok {
		return
	}

	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	booking, err := h.scheduling.Complete(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// POST /api/bookings/:id/cancel — доступно владеющему репетитору и ученику
func (h *Handler) CancelBooking(c *gin.Context) {
	actor := actorFrom(c)

	id, ok := h.bookingID(c)
	if !ok {
		return
	}

	booking, err := h.scheduling.Cancel(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GET /api/bookings — свои бронирования в зависимости от роли
func (h *Handler) ListBookings(c *gin.Context) {
	actor := actorFrom(c)

	var (
		bookings []*model.Booking
		err      error
	)

	if actor.Role == RoleTutor {
		bookings, err = h.scheduling.TutorBookings(c.Request.Context(), actor.ID)
	} else {
		bookings, err = h.scheduling.LearnerBookings(c.Request.Context(), actor.ID)
	}

	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookings)
}
