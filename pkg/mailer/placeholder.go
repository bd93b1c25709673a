package mailer

import "strings"

// Var is one placeholder value. {{Key}} is replaced with Value.
type Var struct {
	Key   string
	Value string
}

// Vars is an ordered list of placeholder values.
type Vars []Var

// Substitute replaces every {{key}} with its value, one Var at a time in
// order. Replacement is literal: values are not escaped, and text inserted by
// an earlier Var is visible to later ones. Unknown placeholders are untouched.
func Substitute(s string, vars ...Var) string {
	for _, v := range vars {
		if v.Key == "" {
			continue
		}
		s = strings.ReplaceAll(s, "{{"+v.Key+"}}", v.Value)
	}
	return s
}

// Get returns the value for key.
func (vs Vars) Get(key string) (string, bool) {
	for _, v := range vs {
		if v.Key == key {
			return v.Value, true
		}
	}
	return "", false
}
