// Package web provides API routes for the web server.
package web

import (
	"net/http"
	"strconv"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/gin-gonic/gin"
)

// API holds what the routes read from. Bot may be nil.
type API struct {
	Store     database.Gateway
	Moderator *moderation.Moderator
	Bot       *discord.ExtendedClient
}

// SetupAPIRoutes sets up the API routes
func SetupAPIRoutes(s *Server, a *API) {
	api := s.Group("/api")
	{
		api.GET("/status", a.statusHandler)
		api.GET("/health", healthHandler)
		api.GET("/bot", a.botInfoHandler)
	}

	mod := api.Group("/moderation")
	{
		mod.GET("/timeouts", a.timeoutsHandler)
		mod.GET("/:serverId/cases/:userId", a.userCasesHandler)
		mod.GET("/:serverId/case/:caseId", a.caseHandler)
		mod.GET("/:serverId/rules", a.rulesHandler)
	}
}

func (a *API) botOnline() bool {
	return a.Bot != nil && a.Bot.IsReady()
}

// statusHandler returns the bot and database status
func (a *API) statusHandler(c *gin.Context) {
	dbStatus, dbOnline := database.Status(c.Request.Context(), a.Store)

	pending := 0
	if a.Moderator != nil {
		pending = a.Moderator.Scheduler.Pending()
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"database": gin.H{
			"status":   dbStatus,
			"isOnline": dbOnline,
		},
		"bot": gin.H{
			"isOnline": a.botOnline(),
		},
		"moderation": gin.H{
			"pendingTimers": pending,
		},
	})
}

// healthHandler returns a simple health check response
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "PancyModBot is running",
	})
}

// botInfoHandler returns information about the bot
func (a *API) botInfoHandler(c *gin.Context) {
	if !a.botOnline() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Bot Offline",
			"message": "El bot no está disponible en este momento.",
		})
		return
	}

	user := a.Bot.Session.State.User
	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"avatar":   user.Avatar,
		"guilds":   a.Bot.GuildCount(),
		"isReady":  true,
	})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal Server Error",
		"message": err.Error(),
		"status":  500,
	})
}

// timeoutsHandler lists active timeouts, optionally of one server
func (a *API) timeoutsHandler(c *gin.Context) {
	var (
		timeouts []models.ActiveTimeout
		err      error
	)
	if serverID := c.Query("serverId"); serverID != "" {
		timeouts, err = a.Moderator.Registry.ListServer(c.Request.Context(), serverID)
	} else {
		timeouts, err = a.Moderator.Registry.LoadAll(c.Request.Context())
	}
	if err != nil {
		internalError(c, err)
		return
	}
	if timeouts == nil {
		timeouts = []models.ActiveTimeout{}
	}

	c.JSON(http.StatusOK, gin.H{
		"timeouts": timeouts,
		"pending":  a.Moderator.Scheduler.Pending(),
	})
}

// userCasesHandler returns the case history of a user
func (a *API) userCasesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	serverID, userID := c.Param("serverId"), c.Param("userId")

	cases, err := a.Moderator.Ledger.Cases(ctx, serverID, userID)
	if err != nil {
		internalError(c, err)
		return
	}
	warns, err := a.Moderator.Ledger.CountWarns(ctx, serverID, userID)
	if err != nil {
		internalError(c, err)
		return
	}
	if cases == nil {
		cases = []models.ModerationCase{}
	}

	c.JSON(http.StatusOK, gin.H{
		"cases": cases,
		"warns": warns,
	})
}

// caseHandler returns one case by id
func (a *API) caseHandler(c *gin.Context) {
	caseID, err := strconv.ParseInt(c.Param("caseId"), 10, 64)
	if err != nil || caseID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": "El id del caso no es válido.",
			"status":  400,
		})
		return
	}

	mc, err := a.Moderator.Ledger.Case(c.Request.Context(), c.Param("serverId"), caseID)
	if err != nil {
		internalError(c, err)
		return
	}
	if mc == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "El caso no existe.",
			"status":  404,
		})
		return
	}
	c.JSON(http.StatusOK, mc)
}

// rulesHandler lists the warn escalation rules of a server
func (a *API) rulesHandler(c *gin.Context) {
	rules, err := a.Moderator.Policy.List(c.Request.Context(), c.Param("serverId"))
	if err != nil {
		internalError(c, err)
		return
	}
	if rules == nil {
		rules = []models.WarnEscalationRule{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}
