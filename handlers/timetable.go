package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"studiobook/models"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	timetableCacheKey = "cache:timetable"
	timetableCacheTTL = 30 * time.Second
)

// Timetable lists upcoming sessions with live spaces-left counts. The
// rendered list is cached briefly; booking mutations invalidate it.
func (hb *HandlerBundle) Timetable(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, err := hb.CacheClient.Get(ctx, timetableCacheKey).Result(); err == nil {
		var views []models.SessionView
		if json.Unmarshal([]byte(cached), &views) == nil {
			c.JSON(http.StatusOK, gin.H{"sessions": views})
			return
		}
	}

	sessions, err := hb.Sessions.ListUpcoming(ctx, time.Now())
	if err != nil {
		hb.respondError(c, err)
		return
	}

	views := make([]models.SessionView, 0, len(sessions))
	for i := range sessions {
		left, err := hb.Capacity.SpacesLeft(ctx, &sessions[i])
		if err != nil {
			hb.respondError(c, err)
			return
		}
		views = append(views, models.SessionView{Session: sessions[i], SpacesLeft: left})
	}

	if body, err := json.Marshal(views); err == nil {
		if err := hb.CacheClient.Set(ctx, timetableCacheKey, body, timetableCacheTTL).Err(); err != nil {
			hb.Logger.Warn("failed to cache timetable", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

// GetSession returns one session with its spaces-left count, uncached.
func (hb *HandlerBundle) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := hb.Sessions.GetByID(ctx, c.Param("sessionID"))
	if err != nil {
		hb.respondError(c, err)
		return
	}
	left, err := hb.Capacity.SpacesLeft(ctx, session)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SessionView{Session: *session, SpacesLeft: left})
}

// invalidateTimetable drops the cached list after any capacity change.
func (hb *HandlerBundle) invalidateTimetable(ctx context.Context) {
	if err := hb.CacheClient.Del(ctx, timetableCacheKey).Err(); err != nil && err != redis.Nil {
		hb.Logger.Warn("failed to invalidate timetable cache", zap.Error(err))
	}
}
