package handlers

import (
	"net/http"

	"studiobook/utils"

	"github.com/gin-gonic/gin"
)

// CreateBooking reserves a spot for the authenticated user, spending a
// membership credit when one is usable.
func (hb *HandlerBundle) CreateBooking(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}
	var input struct {
		SessionID string `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	b, err := hb.StateMachine.Create(c.Request.Context(), id.UserID, id.Email, input.SessionID)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	hb.invalidateTimetable(c.Request.Context())
	c.JSON(http.StatusCreated, b)
}

// CancelBooking cancels the user's booking, applying the cancellation window
// policy and promoting from the waiting list when a spot frees up.
func (hb *HandlerBundle) CancelBooking(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}

	b, err := hb.StateMachine.Cancel(c.Request.Context(), c.Param("bookingID"), id.UserID)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	hb.invalidateTimetable(c.Request.Context())
	c.JSON(http.StatusOK, b)
}

// RebookBooking reopens a previously cancelled booking if space remains.
func (hb *HandlerBundle) RebookBooking(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	b, err := hb.StateMachine.Rebook(c.Request.Context(), c.Param("bookingID"))
	if err != nil {
		hb.respondError(c, err)
		return
	}
	hb.invalidateTimetable(c.Request.Context())
	c.JSON(http.StatusOK, b)
}

// JoinWaitingList queues the user for a full session.
func (hb *HandlerBundle) JoinWaitingList(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}
	var input struct {
		SessionID string `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	if err := hb.WaitingList.Join(c.Request.Context(), id.UserID, id.Email, input.SessionID); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "queued"})
}

// LeaveWaitingList removes the user from a session's waiting list.
func (hb *HandlerBundle) LeaveWaitingList(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}

	if err := hb.WaitingList.Leave(c.Request.Context(), id.UserID, c.Param("sessionID")); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
