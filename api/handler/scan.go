package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/linkshield/cache"
	"github.com/use-agent/linkshield/models"
	"github.com/use-agent/linkshield/scanner"
	"github.com/use-agent/linkshield/target"
)

// Scan returns a handler for POST /api/v1/scan.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age > 0.
//  3. Scanner.ScanTimed → verdict   (records fetch_ms, score_ms)
//  4. Cache store, strip raw if not requested, return 200.
//
// A malicious verdict is a successful scan and is returned with 200.
func Scan(sc *scanner.Scanner, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScanResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		// ── 2. Cache lookup ─────────────────────────────────────────
		maxAge := time.Duration(req.MaxAge) * time.Millisecond
		cacheKey := cache.Key(target.Normalize(req.URL))
		if cc != nil && maxAge > 0 {
			if cached, hit := cc.Get(cacheKey, maxAge); hit {
				c.JSON(http.StatusOK, models.ScanResponse{
					Success:     true,
					Result:      withRaw(cached, *req.IncludeRaw),
					CacheStatus: "hit",
					Timing: models.TimingInfo{
						TotalMs: time.Since(totalStart).Milliseconds(),
					},
				})
				return
			}
		}

		// ── 3. Scan ─────────────────────────────────────────────────
		result, timing, err := sc.ScanTimed(c.Request.Context(), req.URL)
		if err != nil {
			timing.TotalMs = time.Since(totalStart).Milliseconds()
			respondError(c, err, timing)
			return
		}

		// ── 4. Cache store + respond ────────────────────────────────
		resp := models.ScanResponse{
			Success: true,
			Result:  withRaw(result, *req.IncludeRaw),
			Timing:  timing,
		}
		if cc != nil && maxAge > 0 {
			cc.Set(cacheKey, result)
			resp.CacheStatus = "miss"
		}
		resp.Timing.TotalMs = time.Since(totalStart).Milliseconds()
		c.JSON(http.StatusOK, resp)
	}
}

// withRaw returns res, or a shallow copy without the page execution
// result. Cached verdicts are shared and never modified.
func withRaw(res *models.ScanResult, include bool) *models.ScanResult {
	if include || res == nil {
		return res
	}
	cp := *res
	cp.Raw = nil
	return &cp
}

// asScanError unwraps err into a ScanError, wrapping unknown errors as
// internal failures.
func asScanError(err error) *models.ScanError {
	var scanErr *models.ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}
	return models.NewScanError(models.ErrCodeInternal, err.Error(), err)
}

// respondError maps a ScanError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	scanErr := asScanError(err)
	c.JSON(mapErrorToStatus(scanErr), models.ScanResponse{
		Success: false,
		Error:   scanErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScanError) int {
	switch e.Code {
	case models.ErrCodeInvalidURL, models.ErrCodeBlockedTarget:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
