package sender

import "strings"

// nameToken is the only placeholder the pipeline substitutes. Templates came
// from a system whose authoring language is Portuguese, hence "nome".
const nameToken = "{{nome}}"

// Personalize replaces the recipient-name token in the template with the
// customer's name (or the empty string when the name is unset). Any other
// {{...}} token is left character-for-character unchanged.
func Personalize(template, name string) string {
	return strings.ReplaceAll(template, nameToken, name)
}
