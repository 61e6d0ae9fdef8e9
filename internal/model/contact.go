// internal/model/contact.go
package model

// Contact is one row of a campaign's contact list. Phone holds the raw
// value as uploaded; normalization happens at campaign creation.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}
