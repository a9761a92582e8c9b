package secrets

// renderer renders a named resource template with the given variables.
type renderer interface {
	Render(name string, vars any) ([]byte, error)
}
