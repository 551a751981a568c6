// Package pagination parses the page/limit query controls shared by the
// listing endpoints (invoices, inventory, clients, audit log).
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	// MaxLimit caps a single page so listings stay bounded; larger
	// requests are clamped rather than rejected.
	MaxLimit = 100
)

// Params is the resolved page window, with Offset precomputed for gorm
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse reads page and limit from the query string. Missing, malformed,
// or out-of-range values fall back to the defaults instead of failing
// the request.
func Parse(c *gin.Context) Params {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = DefaultPage
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}
