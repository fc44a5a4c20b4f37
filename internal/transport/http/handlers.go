package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"learning-progress-service/internal/app"
	"learning-progress-service/internal/domain"
)

type handlers struct {
	sessions *app.SessionService
	progress *app.ProgressService
}

type startRequest struct {
	QuizID          string `json:"quizId"`
	CourseID        string `json:"courseId"`
	ModuleID        string `json:"moduleId"`
	Duration        int    `json:"duration"`
	DurationMinutes int    `json:"durationMinutes"`
}

// minutes prefers duration and falls back to the older durationMinutes field.
func (r startRequest) minutes() int {
	if r.Duration > 0 {
		return r.Duration
	}
	return r.DurationMinutes
}

type answersRequest struct {
	Answers domain.Answers `json:"answers"`
}

type completeItemRequest struct {
	Completed *bool  `json:"completed"`
	ItemType  string `json:"itemType"`
	ItemIndex *int   `json:"itemIndex"`
}

func (h *handlers) startSession(c *gin.Context) {
	var req startRequest
	if !bindJSON(c, &req, false) {
		return
	}
	view, err := h.sessions.Start(c.Request.Context(), app.StartInput{
		UserID:          userID(c),
		QuizID:          req.QuizID,
		CourseID:        req.CourseID,
		ModuleID:        req.ModuleID,
		DurationMinutes: req.minutes(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *handlers) sessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Status(c.Request.Context(), userID(c), c.Param("quizId"), c.Query("moduleId")))
}

func (h *handlers) saveAnswers(c *gin.Context) {
	var req answersRequest
	if !bindJSON(c, &req, false) {
		return
	}
	saved, err := h.sessions.SaveAnswers(c.Request.Context(), c.Param("sessionId"), userID(c), req.Answers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *handlers) submit(c *gin.Context) {
	var req answersRequest
	if !bindJSON(c, &req, true) {
		return
	}
	result, err := h.sessions.Submit(c.Request.Context(), c.Param("sessionId"), userID(c), req.Answers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) completionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.CompletionStatus(c.Request.Context(), userID(c), c.Param("quizId"), c.Query("moduleId")))
}

func (h *handlers) completeItem(c *gin.Context) {
	var req completeItemRequest
	if !bindJSON(c, &req, true) {
		return
	}
	completed := true
	if req.Completed != nil {
		completed = *req.Completed
	}
	view, err := h.progress.CompleteItem(c.Request.Context(), app.ItemToggle{
		CourseID:  c.Param("courseId"),
		ModuleID:  c.Param("moduleId"),
		UserID:    userID(c),
		ItemID:    c.Param("itemId"),
		ItemType:  app.ItemType(req.ItemType),
		ItemIndex: req.ItemIndex,
		Completed: completed,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) courseProgress(c *gin.Context) {
	progress, err := h.progress.CourseProgress(c.Request.Context(), c.Param("courseId"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// bindJSON decodes the body into dst; an empty body is accepted when optional.
func bindJSON(c *gin.Context, dst any, optional bool) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
	return false
}
