package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/engine"
	"github.com/lesprima/attempt-service/internal/gateway"
	"github.com/lesprima/attempt-service/internal/middleware"
	"github.com/lesprima/attempt-service/internal/model"
	"github.com/lesprima/attempt-service/internal/response"
	"github.com/lesprima/attempt-service/internal/validator"
)

// AttemptHandler handles the student-facing attempt lifecycle endpoints.
type AttemptHandler struct {
	registry *engine.Registry
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(registry *engine.Registry, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		registry: registry,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// attempt resolves the caller's attempt from the registry, failing the
// request on missing claims or a store error.
func (h *AttemptHandler) attempt(c *gin.Context) (*engine.Attempt, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	a, err := h.registry.Attempt(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int("student_id", claims.UserID).Msg("Load attempt failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return nil, false
	}
	return a, true
}

// EnterCode godoc
// POST /api/v1/attempt/code
// Resolves an exam code against the center backend and starts the attempt.
func (h *AttemptHandler) EnterCode(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}

	var req model.EnterCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := a.EnterCode(c.Request.Context(), req.Code)
	if err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetState godoc
// GET /api/v1/attempt
// Returns the full attempt state. Covers page reload: phase, exam
// payload, buffered answers and the remaining time survive it.
func (h *AttemptHandler) GetState(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, a.State())
}

// SetAnswer godoc
// PUT /api/v1/attempt/answers/:question_id
// Records or overwrites one answer; the snapshot is written through
// before the request returns.
func (h *AttemptHandler) SetAnswer(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}

	questionID, err := strconv.ParseInt(c.Param("question_id"), 10, 64)
	if err != nil || questionID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ans := model.Answer{ChosenOptionID: req.ChosenOptionID, WrittenText: req.WrittenText}
	if err := a.SetAnswer(c.Request.Context(), questionID, ans); err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "status": "saved"})
}

// Submit godoc
// POST /api/v1/attempt/submit
// Triggers submission. A duplicate trigger while a submission is in
// flight (or already resolved) returns the current state unchanged.
func (h *AttemptHandler) Submit(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}

	state, err := a.Submit(c.Request.Context())
	if err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Retry godoc
// POST /api/v1/attempt/retry
// Re-submits after a recoverable failure.
func (h *AttemptHandler) Retry(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}

	state, err := a.Retry(c.Request.Context())
	if err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Close godoc
// POST /api/v1/attempt/close
// Acknowledges a terminal screen and returns the machine to IDLE.
func (h *AttemptHandler) Close(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}

	if err := a.Close(c.Request.Context()); err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"phase": model.PhaseIdle})
}

// Abandon godoc
// DELETE /api/v1/attempt
// Walks away from the attempt: timer stopped, durable slot cleared.
func (h *AttemptHandler) Abandon(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}

	if err := a.Abandon(c.Request.Context()); err != nil {
		h.failFromEngine(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"phase": model.PhaseIdle})
}

// failFromEngine maps engine and gateway errors onto API error codes.
func (h *AttemptHandler) failFromEngine(c *gin.Context, err error) {
	var phaseErr *engine.PhaseError
	var vErr *gateway.ValidationError
	var netErr *gateway.NetworkError

	switch {
	case errors.Is(err, gateway.ErrCodeNotFound):
		response.Fail(c, http.StatusBadRequest, response.ErrExamCodeInvalid)
	case errors.As(err, &phaseErr):
		response.Fail(c, http.StatusConflict, response.ErrAttemptPhaseConflict)
	case errors.Is(err, engine.ErrUnknownQuestion):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
	case errors.Is(err, engine.ErrUnknownOption):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownOption)
	case errors.Is(err, engine.ErrAnswerShape):
		response.Fail(c, http.StatusBadRequest, response.ErrAnswerShapeMismatch)
	case errors.As(err, &vErr):
		response.FailWithMessage(c, http.StatusUnprocessableEntity, response.ErrSubmissionRejected, vErr.Message)
	case errors.As(err, &netErr):
		response.Fail(c, http.StatusBadGateway, response.ErrSubmissionFailed)
	default:
		h.log.Error().Err(err).Msg("Unhandled engine error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
