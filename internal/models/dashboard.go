package models

import "time"

// Dashboard is a named, owned collection of widgets. Templates are dashboards
// with IsTemplate set; they are read-only and only serve as cloning sources.
type Dashboard struct {
	ID              string         `firestore:"id" json:"id"`
	OrganizationID  string         `firestore:"organizationId" json:"organizationId"`
	Name            string         `firestore:"name" json:"name"`
	Description     string         `firestore:"description" json:"description"`
	Category        string         `firestore:"category,omitempty" json:"category,omitempty"`
	Widgets         []Widget       `firestore:"widgets" json:"widgets"`
	SharedWithRoles []string       `firestore:"sharedWithRoles" json:"sharedWithRoles"`
	// GlobalFilters are filter values applied when the dashboard opens, keyed
	// by filter key: a string, a number or a [start, end] date pair.
	GlobalFilters   map[string]any `firestore:"globalFilters,omitempty" json:"globalFilters,omitempty"`
	IsTemplate      bool           `firestore:"isTemplate" json:"isTemplate"`
	IsLocked        bool           `firestore:"isLocked" json:"isLocked"`
	IsActive        bool           `firestore:"isActive" json:"isActive"`
	CreatedBy       string         `firestore:"createdBy" json:"createdBy"`
	CreatedAt       time.Time      `firestore:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time      `firestore:"updatedAt" json:"updatedAt"`
}

// Clone deep-copies the dashboard, including every widget config.
func (d *Dashboard) Clone() *Dashboard {
	if d == nil {
		return nil
	}
	out := *d
	out.Widgets = make([]Widget, len(d.Widgets))
	for i, w := range d.Widgets {
		out.Widgets[i] = w.Clone()
	}
	out.SharedWithRoles = append([]string(nil), d.SharedWithRoles...)
	out.GlobalFilters = CloneFilters(d.GlobalFilters)
	return &out
}

// WidgetIndex returns the position of the widget with id, or -1.
func (d *Dashboard) WidgetIndex(id string) int {
	for i := range d.Widgets {
		if d.Widgets[i].ID == id {
			return i
		}
	}
	return -1
}

// VisibleTo reports whether a non-admin holding roles may see the dashboard:
// dashboards shared with no role are visible to every member.
func (d *Dashboard) VisibleTo(roles []string) bool {
	if len(d.SharedWithRoles) == 0 {
		return true
	}
	for _, shared := range d.SharedWithRoles {
		for _, r := range roles {
			if shared == r {
				return true
			}
		}
	}
	return false
}

// CloneFilters copies a default-filter map, including date pairs.
func CloneFilters(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case []any:
			out[k] = append([]any(nil), x...)
		case []string:
			out[k] = append([]string(nil), x...)
		default:
			out[k] = v
		}
	}
	return out
}
