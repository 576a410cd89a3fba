package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/linkshield/models"
)

// IdentityKey is the gin context key holding the caller's identity: a
// fingerprint of its API key. Raw keys are never stored in the context.
const IdentityKey = "identity"

// Auth returns API-key authentication middleware.
//
// Supports two header styles:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// If apiKeys is empty, the middleware is a no-op (open access).
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][sha256.Size]byte
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized,
				"missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}

		sum := sha256.Sum256([]byte(key))
		if !knownKey(digests, sum) {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "invalid API key")
			return
		}

		c.Set(IdentityKey, "key:"+hex.EncodeToString(sum[:8]))
		c.Next()
	}
}

// knownKey compares against every configured digest in constant time.
func knownKey(digests [][sha256.Size]byte, sum [sha256.Size]byte) bool {
	found := 0
	for i := range digests {
		found |= subtle.ConstantTimeCompare(digests[i][:], sum[:])
	}
	return found == 1
}

// extractAPIKey tries X-API-Key first, then Authorization: Bearer.
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ScanResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	})
}
