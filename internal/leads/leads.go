// Package leads implements the admin lead list (search, status filter,
// paging, CSV export) and the public contact form intake.
package leads

import (
	"strings"

	"github.com/samber/lo"

	"bouwsite/internal/store"
)

const PageSize = 10

type Query struct {
	Search string
	Status store.LeadStatus
}

// Filter keeps leads whose name, email or project contains Search
// (case-insensitive) and whose status equals Status when set.
func Filter(leads []store.Lead, q Query) []store.Lead {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	return lo.Filter(leads, func(l store.Lead, _ int) bool {
		if q.Status != "" && l.Status != q.Status {
			return false
		}
		if needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(l.Name), needle) ||
			strings.Contains(strings.ToLower(l.Email), needle) ||
			strings.Contains(strings.ToLower(l.Project), needle)
	})
}

type Page struct {
	Items      []store.Lead `json:"items"`
	Page       int          `json:"page"`
	TotalPages int          `json:"totalPages"`
	Total      int          `json:"total"`
}

// Paginate returns the 1-based page of leads. Out of range pages are clamped.
func Paginate(leads []store.Lead, page int) Page {
	total := len(leads)
	pages := (total + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}
	page = lo.Clamp(page, 1, pages)
	start := (page - 1) * PageSize
	return Page{
		Items:      lo.Slice(leads, start, start+PageSize),
		Page:       page,
		TotalPages: pages,
		Total:      total,
	}
}

var csvHeader = []string{"Naam", "Email", "Telefoon", "Project", "Datum", "Status"}

// CSV renders leads one per line with plain comma joins. Fields are not
// quoted, so a comma inside a field shifts the columns of that row.
func CSV(leads []store.Lead) string {
	rows := make([]string, 0, len(leads)+1)
	rows = append(rows, strings.Join(csvHeader, ","))
	for _, l := range leads {
		rows = append(rows, strings.Join([]string{
			l.Name,
			l.Email,
			l.Phone,
			l.Project,
			l.Date.Format("2006-01-02"),
			string(l.Status),
		}, ","))
	}
	return strings.Join(rows, "\n")
}
