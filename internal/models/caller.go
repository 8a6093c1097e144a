package models

// Caller is the authenticated user a request runs for, built from verified
// Firebase ID token claims.
type Caller struct {
	UID            string
	OrganizationID string
	Roles          []string
	Admin          bool
	// Token is the raw bearer token, forwarded to collaborators when no
	// service credential is configured.
	Token string
}

// CanSee reports whether the caller may open d.
func (c Caller) CanSee(d *Dashboard) bool {
	if d.OrganizationID != "" && d.OrganizationID != c.OrganizationID {
		return false
	}
	return c.Admin || d.IsTemplate || d.VisibleTo(c.Roles)
}
