package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/leaderboard"
)

const defaultLeaderboardN = 10

// registerLeaderboardRoutes registers the per-area leaderboard route.
func registerLeaderboardRoutes(r *gin.Engine, lb *leaderboard.Service, log *zap.Logger) {
	r.GET("/leaderboard/:scope", func(c *gin.Context) {
		n := queryInt(c, "n", defaultLeaderboardN, 1000)

		entries, err := lb.TopN(c.Request.Context(), c.Param("scope"), n)
		if err != nil {
			writeError(c, log, err)
			return
		}

		items := make([]gin.H, 0, len(entries))
		for i, e := range entries {
			items = append(items, gin.H{
				"rank":    i + 1,
				"user_id": e.UserID,
				"count":   e.Count,
			})
		}
		c.JSON(http.StatusOK, gin.H{"scope": c.Param("scope"), "entries": items})
	})
}
