package types

// Page is a paginated slice of ledger events.
type Page struct {
	Data        []LedgerEvent `json:"data"`
	CurrentPage int           `json:"current_page"`
	PerPage     int           `json:"per_page"`
	Total       int           `json:"total"`
	LastPage    int           `json:"last_page"`
	From        *int          `json:"from"`
	To          *int          `json:"to"`
	NextPageURL *string       `json:"next_page_url"`
	PrevPageURL *string       `json:"prev_page_url"`
}

// HasNext reports whether a page follows this one.
func (p Page) HasNext() bool { return p.CurrentPage < p.LastPage }

// HasPrev reports whether a page precedes this one.
func (p Page) HasPrev() bool { return p.CurrentPage > 1 }
