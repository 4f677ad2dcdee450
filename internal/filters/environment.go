package filters

// Environment is the registration surface handed to Register. API filters
// run inside the API router only; dispatcher filters wrap the whole server
// and apply to requests matching their URL patterns.
type Environment struct {
	API        *Registry
	Dispatcher *Registry

	// URLPattern is where the API is mounted, e.g. "/api/*".
	URLPattern string
}

func NewEnvironment(urlPattern string, factories map[string]Factory) *Environment {
	return &Environment{
		API:        NewRegistry(LevelAPI, factories),
		Dispatcher: NewRegistry(LevelDispatcher, factories),
		URLPattern: urlPattern,
	}
}
