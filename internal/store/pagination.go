package store

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// PaginationParams selects one page of a listing
type PaginationParams struct {
	Page     int    // 1-indexed
	PageSize int
	Search   string // matched against names where the listing supports it
}

// PaginationResult describes where a page sits in the full listing
type PaginationResult struct {
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	HasPrev     bool  `json:"has_prev"`
	HasNext     bool  `json:"has_next"`
	PrevPage    int   `json:"prev_page"`
	NextPage    int   `json:"next_page"`
}

// NewPaginationParams clamps page to at least 1 and pageSize to
// [1, MaxPageSize], substituting DefaultPageSize for non-positive sizes.
func NewPaginationParams(page, pageSize int, search string) PaginationParams {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return PaginationParams{
		Page:     max(page, 1),
		PageSize: min(pageSize, MaxPageSize),
		Search:   search,
	}
}

// Offset returns the number of rows to skip for the current page
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// CalculatePagination builds the page metadata for total rows. A current
// page beyond the last page is pulled back to the last page.
func CalculatePagination(total int64, currentPage, pageSize int) PaginationResult {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	currentPage = max(currentPage, 1)
	if totalPages > 0 {
		currentPage = min(currentPage, totalPages)
	}

	return PaginationResult{
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: currentPage,
		PageSize:    pageSize,
		HasPrev:     currentPage > 1,
		HasNext:     currentPage < totalPages,
		PrevPage:    max(currentPage-1, 1),
		NextPage:    min(currentPage+1, max(totalPages, 1)),
	}
}
