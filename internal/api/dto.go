package api

import (
	"github.com/starford/craftmd/internal/index"
	"github.com/starford/craftmd/internal/models"
	"github.com/starford/craftmd/internal/review"
)

// SetStatusRequest is the request body for recording a verdict.
type SetStatusRequest struct {
	Status string `json:"status" example:"good" validate:"required"`
	Note   string `json:"note,omitempty" example:"table lost its header row"`
}

// DocumentDetail is the full document response type (aliased from the review layer).
type DocumentDetail = review.DocumentDetail

// DocumentRow is a ledger row (aliased from the index layer).
type DocumentRow = index.DocumentRow

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []DocumentRow `json:"documents" validate:"required"`
	Total     int           `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse lists document paths.
type BacklinksResponse struct {
	Backlinks []string `json:"backlinks" example:"Work/Plan.md" validate:"required"`
}

// DanglingResponse lists unresolved wikilinks.
type DanglingResponse struct {
	Links []models.Link `json:"links" validate:"required"`
}
