package model

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// PageRequest asks for one page of a listing. Zero values mean first page, default size.
type PageRequest struct {
	Page    int
	PerPage int
}

// Normalize clamps the request into a valid page.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset is the number of rows to skip.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// PageMeta describes a served page.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

// Meta computes page metadata for total matching rows.
func (p PageRequest) Meta(total int) PageMeta {
	n := p.Normalize()
	last := (total + n.PerPage - 1) / n.PerPage
	if last < 1 {
		last = 1
	}
	return PageMeta{CurrentPage: n.Page, PerPage: n.PerPage, Total: total, LastPage: last}
}
