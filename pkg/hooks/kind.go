package hooks

// Kind selects which verification scripts run.
type Kind string

const (
	Pre     Kind = "pre"
	Post    Kind = "post"
	Compare Kind = "compare"
)

// Dir is the scripts subdirectory holding scripts of this kind.
func (k Kind) Dir() string {
	return string(k)
}
