package pagination

import (
	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a clamped page window. Page starts at 1.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

type query struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// Parse reads page/limit from the query string. Missing, malformed or out of range
// values fall back to the defaults.
func Parse(c *gin.Context) Params {
	var q query
	if err := c.ShouldBindQuery(&q); err != nil {
		return New(0, 0)
	}
	return New(q.Page, q.Limit)
}

// New clamps raw values: page < 1 becomes DefaultPage, limit < 1 DefaultLimit,
// and limit is capped at MaxLimit
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Bounds returns the [start, end) slice indexes of the window over n rows
func (p Params) Bounds(n int) (start, end int) {
	start = p.Offset
	if start > n {
		start = n
	}
	end = start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}
