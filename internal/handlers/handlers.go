// Package handlers wires the HTTP surface. Authentication and capability
// checks live in the gateway in front of this service; handlers trust the
// identity headers it injects.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/aws"
	"github.com/whiskermap/go-catmap-backend/internal/cats"
	"github.com/whiskermap/go-catmap-backend/internal/comments"
	"github.com/whiskermap/go-catmap-backend/internal/config"
	"github.com/whiskermap/go-catmap-backend/internal/core"
	"github.com/whiskermap/go-catmap-backend/internal/leaderboard"
	"github.com/whiskermap/go-catmap-backend/internal/tokens"
	"github.com/whiskermap/go-catmap-backend/internal/treats"
	"github.com/whiskermap/go-catmap-backend/internal/visits"
)

// HandlerConfig groups dependencies for the API handlers.
type HandlerConfig struct {
	DynamoDBClient   aws.DynamoDBAPI
	SQSClient        aws.SQSAPI
	CloudWatchClient aws.CloudWatchAPI
	Config           *config.Config
	Logger           *zap.Logger
}

// Register builds the stores and services and registers all routes.
func Register(r *gin.Engine, cfg HandlerConfig) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	publisher := aws.NewPublisher(cfg.SQSClient, cfg.Config.ReconcileQueueURL)
	metrics := aws.NewMetrics(cfg.CloudWatchClient, cfg.Config.MetricsNamespace, log)

	catStore := cats.NewStore(cfg.DynamoDBClient, cfg.Config.CatsTable)
	visitStore := visits.NewStore(cfg.DynamoDBClient, cfg.Config.VisitsTable)
	treatStore := treats.NewStore(cfg.DynamoDBClient, cfg.Config.TreatsTable)
	tokenStore := tokens.NewStore(cfg.DynamoDBClient, cfg.Config.TokensTable)
	commentStore := comments.NewStore(cfg.DynamoDBClient, cfg.Config.CommentsTable, cfg.Config.CommentMaxLength)
	lbStore := leaderboard.NewStore(cfg.DynamoDBClient, cfg.Config.LeaderboardTable)

	lbCache, err := leaderboard.NewCache(cfg.Config.RedisURL, cfg.Config.LeaderboardCacheTTL, log)
	if err != nil {
		log.Warn("leaderboard cache disabled", zap.Error(err))
		lbCache = nil
	}
	lbService := leaderboard.NewService(lbStore, lbCache, cfg.Config.LeaderboardMaxN)

	visitService := visits.NewService(visitStore, catStore, publisher, metrics, log)
	treatService := treats.NewService(treatStore, catStore, tokenStore, lbService, publisher, metrics, log)

	registerCatRoutes(r, cfg, catStore, log)
	registerEngagementRoutes(r, cfg, visitService, treatService, tokenStore, commentStore, catStore, log)
	registerLeaderboardRoutes(r, lbService, log)
}

// identity returns the caller identity injected by the gateway. Signed-in
// users carry X-User-Id; anonymous visitors carry a device-scoped
// X-Visitor-Id.
func identity(c *gin.Context) string {
	if id := c.GetHeader("X-User-Id"); id != "" {
		return id
	}
	return c.GetHeader("X-Visitor-Id")
}

// userID returns the signed-in user identity, or "" for anonymous callers.
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-Id")
}

// writeError translates service errors into HTTP responses.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "msg": err.Error()})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, core.ErrTokenNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "token_not_found"})
	case errors.Is(err, core.ErrTokenExpired):
		c.JSON(http.StatusGone, gin.H{"error": "token_expired"})
	case errors.Is(err, core.ErrTokenAlreadyUsed):
		c.JSON(http.StatusConflict, gin.H{"error": "token_already_used"})
	case errors.Is(err, core.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "msg": err.Error()})
	case errors.Is(err, core.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	case errors.Is(err, core.ErrStorageUnavailable):
		log.Warn("storage unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
	default:
		log.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
