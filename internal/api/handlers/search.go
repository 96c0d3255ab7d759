package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/cinesearch/cinesearch/internal/search"
	"github.com/cinesearch/cinesearch/internal/search/ranking"
)

const maxSearchLimit = 50

// Searcher answers title queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]ranking.Result, error)
}

// SearchHandler serves the JSON search endpoint.
type SearchHandler struct {
	search Searcher
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(s Searcher) *SearchHandler {
	return &SearchHandler{search: s}
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	Query   string           `json:"query"`
	Count   int              `json:"count"`
	Results []ranking.Result `json:"results"`
}

// Search runs a fuzzy title search.
// GET /api/search?q=titanic&limit=20
func (h *SearchHandler) Search(c echo.Context) error {
	query := c.QueryParam("q")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxSearchLimit)
	}

	results, err := h.search.Search(c.Request().Context(), query, limit)
	switch {
	case errors.Is(err, search.ErrQueryTooShort):
		return echo.NewHTTPError(http.StatusBadRequest, "query must be at least 2 characters")
	case errors.Is(err, search.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search temporarily unavailable")
	case err != nil:
		return err
	}

	if results == nil {
		results = []ranking.Result{}
	}
	return c.JSON(http.StatusOK, SearchResponse{
		Query:   query,
		Count:   len(results),
		Results: results,
	})
}
