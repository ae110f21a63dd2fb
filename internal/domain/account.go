package domain

import "time"

// AccountType identifies the platform a directory listing points at.
type AccountType string

const (
	AccountTypeInstagram     AccountType = "instagram"
	AccountTypeWhatsApp      AccountType = "whatsapp"
	AccountTypeWhatsAppGroup AccountType = "whatsapp_group"
)

// Valid reports whether the account type is one of the supported platforms.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeInstagram, AccountTypeWhatsApp, AccountTypeWhatsAppGroup:
		return true
	}
	return false
}

// Category groups directory listings and carries a display color for the UI.
type Category struct {
	ID        string
	Name      string
	Color     string
	CreatedAt time.Time
}

// Account represents a registered social-media profile or group in the directory.
type Account struct {
	ID          string
	OwnerID     string
	Type        AccountType
	Name        string
	Username    *string
	ProfileURL  string
	Description *string
	Categories  []Category
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserProfile carries the public-facing data of a registered user.
type UserProfile struct {
	ID          string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
}
