package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     Template
		vars     map[string]string
		expected string
		missing  string
	}{
		{name: "plain", tmpl: "zypper -n in $packages", vars: map[string]string{"packages": "a b"}, expected: "zypper -n in a b"},
		{name: "braces", tmpl: "zypper -n in ${package}=${version}", vars: map[string]string{"package": "foo", "version": "1.2"}, expected: "zypper -n in foo=1.2"},
		{name: "escaped dollar", tmpl: "echo $$HOME $x", vars: map[string]string{"x": "1"}, expected: "echo $HOME 1"},
		{name: "no placeholders", tmpl: "systemctl reboot", expected: "systemctl reboot"},
		{name: "missing", tmpl: "zypper -n in $package", vars: map[string]string{}, missing: "package"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.tmpl.Substitute(tt.vars)
			if tt.missing != "" {
				var mv *MissingVariableError
				require.ErrorAs(t, err, &mv)
				assert.Equal(t, tt.missing, mv.Name)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTemplateSafeSubstitute(t *testing.T) {
	tmpl := Template("zypper -n in ${package}=$version $repa")
	got := tmpl.SafeSubstitute(map[string]string{"package": "foo"})
	assert.Equal(t, "zypper -n in foo=$version $repa", got)
}
