package domain

import "strings"

// StatusCatalog assigns a stable semantic category to every backend status.
// The backend only exposes {id,label}, so the mapping is built once from the
// status list at load time; semantic checks must never compare display text
// directly. Labels with no mapping fall back to Busy so an unknown status can
// never be offered for dispatch.
type StatusCatalog struct {
	byID map[string]StatusCategory
}

var defaultLabelCategories = map[string]StatusCategory{
	"disponible":        CategoryAvailable,
	"available":         CategoryAvailable,
	"en servicio":       CategoryBusy,
	"in service":        CategoryBusy,
	"ocupada":           CategoryBusy,
	"en mantenimiento":  CategoryOutOfService,
	"mantenimiento":     CategoryOutOfService,
	"in maintenance":    CategoryOutOfService,
	"fuera de servicio": CategoryOutOfService,
}

// NewStatusCatalog builds the catalog from the backend's status list.
// extraAvailable lists additional labels to treat as Available, for
// environments whose wording differs from the defaults.
func NewStatusCatalog(statuses []Status, extraAvailable ...string) StatusCatalog {
	available := make(map[string]struct{}, len(extraAvailable))
	for _, label := range extraAvailable {
		available[normalizeLabel(label)] = struct{}{}
	}
	byID := make(map[string]StatusCategory, len(statuses))
	for _, status := range statuses {
		label := normalizeLabel(status.Label)
		if _, ok := available[label]; ok {
			byID[status.ID] = CategoryAvailable
			continue
		}
		if category, ok := defaultLabelCategories[label]; ok {
			byID[status.ID] = category
			continue
		}
		byID[status.ID] = CategoryBusy
	}
	return StatusCatalog{byID: byID}
}

// Category resolves the semantic category of a status. Statuses absent from
// the catalog (added server-side after load) are treated as Busy.
func (c StatusCatalog) Category(status Status) StatusCategory {
	if category, ok := c.byID[status.ID]; ok {
		return category
	}
	return CategoryBusy
}

// Available reports whether the unit's status maps to the Available category.
func (c StatusCatalog) Available(unit Unit) bool {
	return c.Category(unit.Status) == CategoryAvailable
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
