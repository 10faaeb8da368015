package domain

import "time"

// Application is an OAuth client registration. This service only issues
// tokens for the single first-party add-on application, resolved once at
// startup by its client id.
type Application struct {
	ID        string
	ClientID  string
	Name      string
	Scopes    []string // scopes stamped onto tokens issued for this application
	CreatedAt time.Time
	UpdatedAt time.Time
}
