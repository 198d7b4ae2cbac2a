package target

import (
	"fmt"
	"regexp"
)

// Template is a command line with $name or ${name} placeholders. A
// literal dollar sign is written as $$.
type Template string

var placeholder = regexp.MustCompile(`\$(?:(\$)|([A-Za-z_][A-Za-z0-9_]*)|\{([A-Za-z_][A-Za-z0-9_]*)\})`)

// MissingVariableError is returned by Substitute for an unknown placeholder.
type MissingVariableError struct {
	Template Template
	Name     string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %q: no value for $%s", string(e.Template), e.Name)
}

// Substitute replaces every placeholder and fails on a missing one.
func (t Template) Substitute(vars map[string]string) (string, error) {
	var missing string
	out := t.expand(vars, func(name string) string {
		if missing == "" {
			missing = name
		}
		return ""
	})
	if missing != "" {
		return "", &MissingVariableError{Template: t, Name: missing}
	}
	return out, nil
}

// SafeSubstitute leaves placeholders without a value untouched.
func (t Template) SafeSubstitute(vars map[string]string) string {
	return t.expand(vars, nil)
}

// MustSubstitute is Substitute for templates whose variables are known to
// be complete, such as reboot commands without placeholders.
func (t Template) MustSubstitute(vars map[string]string) string {
	s, err := t.Substitute(vars)
	if err != nil {
		panic(err)
	}
	return s
}

func (t Template) IsZero() bool {
	return t == ""
}

func (t Template) expand(vars map[string]string, onMissing func(string) string) string {
	return placeholder.ReplaceAllStringFunc(string(t), func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		if sub[1] != "" {
			return "$"
		}
		name := sub[2]
		if name == "" {
			name = sub[3]
		}
		if v, ok := vars[name]; ok {
			return v
		}
		if onMissing != nil {
			return onMissing(name)
		}
		return m
	})
}
