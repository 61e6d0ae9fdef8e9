// internal/template/template.go
package template

import (
	"strings"

	"github.com/zapblast/zapblast-backend/internal/model"
)

// DefaultName substitutes a missing contact name so greetings still read
// naturally.
const DefaultName = "Customer"

// Render personalizes a message template for one contact. Supported
// placeholders are {name}, {phone} and {email}, plus the Portuguese aliases
// {nome} and {telefone} kept for uploaded lists that use them. Unresolved
// placeholders fall back to defaults instead of failing; Render is total
// over any template/contact pair.
func Render(tpl string, c model.Contact) string {
	name := c.Name
	if name == "" {
		name = DefaultName
	}

	replacer := strings.NewReplacer(
		"{name}", name,
		"{nome}", name,
		"{phone}", c.Phone,
		"{telefone}", c.Phone,
		"{email}", c.Email,
	)
	return replacer.Replace(tpl)
}
