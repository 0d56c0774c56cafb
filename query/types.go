package query

import (
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

const (
	DirectionAsc  = "asc"
	DirectionDesc = "desc"
)

type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type Sort struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Filters is the closed set of named filter fields accepted across collections.
// An empty field means "not filtered". Collections ignore fields which don't
// apply to them.
type Filters struct {
	Search   string `json:"search,omitempty"`
	Status   string `json:"status,omitempty"`
	Type     string `json:"type,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Scenario string `json:"scenario,omitempty"`
}

func (f Filters) IsZero() bool {
	return f == Filters{}
}

// Params is the full request shape accepted by the query/read endpoints.
type Params struct {
	Pagination Pagination `json:"pagination"`
	Filters    Filters    `json:"filters"`
	Sort       Sort       `json:"sort"`
}

// PageInfo is the pagination metadata returned alongside every page.
// Invariants: TotalPages = ceil(TotalItems/PageSize), HasNextPage iff
// CurrentPage < TotalPages, HasPreviousPage iff CurrentPage > 1.
type PageInfo struct {
	CurrentPage     int  `json:"currentPage"`
	PageSize        int  `json:"pageSize"`
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// NewPageInfo derives the pagination metadata for a page.
func NewPageInfo(page, pageSize, totalItems int) PageInfo {
	if pageSize <= 0 {
		pageSize = 1
	}
	totalPages := (totalItems + pageSize - 1) / pageSize
	return PageInfo{
		CurrentPage:     page,
		PageSize:        pageSize,
		TotalItems:      totalItems,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}

// Response is the wire shape returned by every query/read endpoint.
type Response[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageInfo `json:"pagination"`
}
