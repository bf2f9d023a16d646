package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/libraryops/patron-blocks/internal/i18n"
)

const localizerKey = "localizer"

// Locale resolves Accept-Language against the catalog and stores a localizer
// for the request.
func Locale(catalog *i18n.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		tag := catalog.Match(c.GetHeader("Accept-Language"))
		c.Set(localizerKey, catalog.Localizer(tag.String()))
		c.Header("Content-Language", tag.String())
		c.Next()
	}
}

// GetLocalizer returns the request localizer set by Locale, or fallback.
func GetLocalizer(c *gin.Context, fallback *i18n.Localizer) *i18n.Localizer {
	if v, exists := c.Get(localizerKey); exists {
		if loc, ok := v.(*i18n.Localizer); ok {
			return loc
		}
	}
	return fallback
}
