package repository

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type PaginationMeta struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalItems  int `json:"total_items"`
	PerPage     int `json:"per_page"`
}

func newPaginationMeta(page, limit, totalItems int) PaginationMeta {
	return PaginationMeta{
		CurrentPage: page,
		TotalPages:  (totalItems + limit - 1) / limit,
		TotalItems:  totalItems,
		PerPage:     limit,
	}
}

// normalizePage clamps page and limit to usable values and returns the row offset.
func normalizePage(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit, (page - 1) * limit
}
