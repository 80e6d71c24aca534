package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/cats"
	"github.com/whiskermap/go-catmap-backend/internal/comments"
	"github.com/whiskermap/go-catmap-backend/internal/tokens"
	"github.com/whiskermap/go-catmap-backend/internal/treats"
	"github.com/whiskermap/go-catmap-backend/internal/validation"
	"github.com/whiskermap/go-catmap-backend/internal/visits"
)

// registerEngagementRoutes registers visit, token, treat and comment routes.
func registerEngagementRoutes(
	r *gin.Engine,
	cfg HandlerConfig,
	visitService *visits.Service,
	treatService *treats.Service,
	tokenStore *tokens.Store,
	commentStore *comments.Store,
	catStore *cats.Store,
	log *zap.Logger,
) {
	v := validation.New()

	r.POST("/cats/:id/visits", func(c *gin.Context) {
		ctx := c.Request.Context()
		catID := c.Param("id")

		id := identity(c)
		if id == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_identity"})
			return
		}

		created, err := visitService.RecordVisit(ctx, id, catID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		if created {
			c.JSON(http.StatusCreated, gin.H{"cat_id": catID, "recorded": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cat_id": catID, "recorded": false})
	})

	r.POST("/tokens", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.IssueTokenRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		// only issue tokens for cats that exist
		cat, err := catStore.Get(ctx, req.CatID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		if cat == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}

		scope := tokens.TreatScope(req.CatID)
		if req.Action == "comment" {
			scope = tokens.CommentScope(req.CatID)
		}
		token, err := tokenStore.Issue(ctx, scope, cfg.Config.TokenTTL)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"token":      token,
			"expires_in": int(cfg.Config.TokenTTL.Seconds()),
		})
	})

	r.POST("/cats/:id/treats", func(c *gin.Context) {
		ctx := c.Request.Context()
		catID := c.Param("id")

		id := identity(c)
		if id == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_identity"})
			return
		}

		var req validation.GiveTreatRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		result, err := treatService.GiveTreat(ctx, catID, id, req.Token)
		if err != nil {
			writeError(c, log, err)
			return
		}
		status := http.StatusCreated
		if result == treats.ResultAlreadyGiven {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"cat_id": catID, "result": result})
	})

	r.POST("/cats/:id/comments", func(c *gin.Context) {
		ctx := c.Request.Context()
		catID := c.Param("id")

		id := identity(c)
		if id == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_identity"})
			return
		}

		var req validation.PostCommentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		cat, err := catStore.Get(ctx, catID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		if cat == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}

		if err := tokenStore.Redeem(ctx, req.Token, tokens.CommentScope(catID)); err != nil {
			writeError(c, log, err)
			return
		}

		comment, err := commentStore.Post(ctx, catID, id, req.Body)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, commentResponse(comment))
	})

	r.GET("/cats/:id/comments", func(c *gin.Context) {
		catID := c.Param("id")
		limit := queryInt(c, "limit", 20, 100)
		oldestFirst := c.Query("order") == "oldest"

		page, next, err := commentStore.ListByCat(c.Request.Context(), catID, c.Query("cursor"), limit, oldestFirst)
		if err != nil {
			writeError(c, log, err)
			return
		}
		items := make([]gin.H, 0, len(page))
		for i := range page {
			items = append(items, commentResponse(&page[i]))
		}
		c.JSON(http.StatusOK, gin.H{"comments": items, "next_cursor": next})
	})

	// moderation removal
	r.DELETE("/cats/:id/comments/:commentId", func(c *gin.Context) {
		catID := c.Param("id")
		commentID := c.Param("commentId")

		if err := commentStore.Remove(c.Request.Context(), catID, commentID); err != nil {
			writeError(c, log, err)
			return
		}
		log.Info("comment removed",
			zap.String("cat_id", catID),
			zap.String("moderator", userID(c)))
		c.Status(http.StatusNoContent)
	})
}

func commentResponse(cm *comments.Comment) gin.H {
	return gin.H{
		"comment_id": cm.CommentID,
		"cat_id":     cm.CatID,
		"visitor_id": cm.VisitorID,
		"body":       cm.Body,
		"created_at": cm.CreatedAt,
	}
}
