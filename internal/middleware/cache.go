package middleware

import "github.com/gin-gonic/gin"

const contextMetaKey = "responseMeta"

// WithResponseMeta seeds a per-request meta map handlers can enrich.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit marks whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	if value, ok := c.Get(contextMetaKey); ok {
		if meta, ok := value.(map[string]interface{}); ok {
			meta["cacheHit"] = hit
		}
	}
}

// ExtractMeta returns the request meta map when it carries any entries.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	value, ok := c.Get(contextMetaKey)
	if !ok {
		return nil
	}
	meta, ok := value.(map[string]interface{})
	if !ok || len(meta) == 0 {
		return nil
	}
	return meta
}
