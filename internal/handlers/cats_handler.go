package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/whiskermap/go-catmap-backend/internal/cats"
	"github.com/whiskermap/go-catmap-backend/internal/geo"
	"github.com/whiskermap/go-catmap-backend/internal/validation"
)

// registerCatRoutes registers submission, lookup, viewport and moderation
// routes.
func registerCatRoutes(r *gin.Engine, cfg HandlerConfig, catStore *cats.Store, log *zap.Logger) {
	v := validation.New()

	r.POST("/cats", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.SubmitCatRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		cat, err := catStore.Submit(ctx, cats.Submission{
			Lat:         req.Lat,
			Lon:         req.Lon,
			Name:        req.Name,
			Description: req.Description,
			SubmittedBy: userID(c),
		})
		if err != nil {
			writeError(c, log, err)
			return
		}

		log.Info("cat submitted",
			zap.String("cat_id", cat.CatID),
			zap.String("geohash", cat.Geohash))
		c.JSON(http.StatusCreated, catResponse(cat))
	})

	r.GET("/cats/:id", func(c *gin.Context) {
		cat, err := catStore.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		if cat == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, catResponse(cat))
	})

	r.GET("/cats", func(c *gin.Context) {
		box, ok := parseBBox(c, v)
		if !ok {
			return
		}
		limit := queryInt(c, "limit", cfg.Config.ViewportPageSize, cfg.Config.ViewportPageSize)

		page, next, err := catStore.QueryByViewport(c.Request.Context(), box, c.Query("cursor"), limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		items := make([]gin.H, 0, len(page))
		for i := range page {
			items = append(items, catResponse(&page[i]))
		}
		c.JSON(http.StatusOK, gin.H{"cats": items, "next_cursor": next})
	})

	r.GET("/cats/pending", func(c *gin.Context) {
		limit := queryInt(c, "limit", cfg.Config.ViewportPageSize, cfg.Config.ViewportPageSize)

		page, next, err := catStore.QueryPendingQueue(c.Request.Context(), c.Query("cursor"), limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		items := make([]gin.H, 0, len(page))
		for i := range page {
			items = append(items, catResponse(&page[i]))
		}
		c.JSON(http.StatusOK, gin.H{"cats": items, "next_cursor": next})
	})

	r.POST("/cats/:id/moderate", func(c *gin.Context) {
		ctx := c.Request.Context()
		catID := c.Param("id")

		var req validation.ModerateCatRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		status, err := catStore.Moderate(ctx, catID, req.Decision)
		if err != nil {
			writeError(c, log, err)
			return
		}

		log.Info("cat moderated",
			zap.String("cat_id", catID),
			zap.String("decision", req.Decision),
			zap.String("moderator", userID(c)))
		c.JSON(http.StatusOK, gin.H{"cat_id": catID, "status": status})
	})
}

func catResponse(cat *cats.Cat) gin.H {
	return gin.H{
		"cat_id":      cat.CatID,
		"status":      cat.Status,
		"lat":         cat.Lat,
		"lon":         cat.Lon,
		"name":        cat.Name,
		"description": cat.Description,
		"treat_count": cat.TreatCount,
		"visit_count": cat.VisitCount,
		"created_at":  cat.CreatedAt.Time().Format(time.RFC3339),
	}
}

// parseBBox reads bbox=min_lon,min_lat,max_lon,max_lat. On failure it
// writes a 400 and returns ok=false.
func parseBBox(c *gin.Context, v *validatorv10.Validate) (geo.BoundingBox, bool) {
	parts := strings.Split(c.Query("bbox"), ",")
	if len(parts) != 4 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bbox", "msg": "bbox must be min_lon,min_lat,max_lon,max_lat"})
		return geo.BoundingBox{}, false
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bbox", "msg": "bbox values must be numbers"})
			return geo.BoundingBox{}, false
		}
		vals[i] = f
	}
	q := validation.ViewportQuery{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if err := v.Struct(q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bbox", "msg": err.Error()})
		return geo.BoundingBox{}, false
	}
	return geo.BoundingBox{MinLat: q.MinLat, MinLon: q.MinLon, MaxLat: q.MaxLat, MaxLon: q.MaxLon}, true
}

func queryInt(c *gin.Context, key string, fallback, max int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
