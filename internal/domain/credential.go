package domain

import "strings"

// Credential is the single locally stored user record. Age is kept as the
// string the user typed.
type Credential struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Age      string `json:"age" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Matches compares trimmed email and password against the record.
func (c Credential) Matches(email, password string) bool {
	return strings.TrimSpace(c.Email) == strings.TrimSpace(email) &&
		strings.TrimSpace(c.Password) == strings.TrimSpace(password)
}

// Initial is the first letter of the name, used for the profile avatar.
func (c Credential) Initial() string {
	for _, r := range c.Name {
		return string(r)
	}
	return ""
}
