package models

// User is the identity a connection or request acts as.
type User struct {
	ID          string `json:"id"`           // Tailscale user ID, or a per-connection id
	LoginName   string `json:"login_name"`   // e.g., "user@example.com"
	DisplayName string `json:"display_name"` // e.g., "John Doe"
	ProfilePic  string `json:"profile_pic"`  // URL to profile picture
}

// Name returns the display name used as forum author.
func (u *User) Name() string {
	if u == nil {
		return "Anonymous"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.LoginName != "" {
		return u.LoginName
	}
	return "Anonymous"
}
