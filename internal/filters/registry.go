package filters

import (
	"errors"
	"maps"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/keithlinneman/filterkit/internal/xerrors"
)

// Middleware is the shape every filter takes once instantiated.
type Middleware = func(http.Handler) http.Handler

// Factory instantiates a filter from its registration params.
type Factory func(params map[string]string) (Middleware, error)

var (
	ErrDuplicateFilter = errors.New("filter already registered")
	ErrUnknownFilter   = errors.New("no factory for filter")
)

// Registration levels.
const (
	LevelAPI        = "api"
	LevelDispatcher = "dispatcher"
)

// Registration is one named filter attached to a Registry, with its init
// params and the URL patterns it is mapped to.
type Registration struct {
	name     string
	params   map[string]string
	patterns []string
}

func (r *Registration) Name() string { return r.name }

func (r *Registration) SetParam(key, value string) {
	r.params[key] = value
}

func (r *Registration) Param(key string) (string, bool) {
	v, ok := r.params[key]
	return v, ok
}

// Params returns a copy of the init params.
func (r *Registration) Params() map[string]string {
	return maps.Clone(r.params)
}

// MapPatterns adds servlet-style URL patterns ("/*", "/api/*", "*.json",
// "/exact"). A registration with no patterns applies to every request.
func (r *Registration) MapPatterns(patterns ...string) {
	r.patterns = append(r.patterns, patterns...)
}

func (r *Registration) Patterns() []string {
	return slices.Clone(r.patterns)
}

func (r *Registration) matches(p string) bool {
	if len(r.patterns) == 0 {
		return true
	}
	for _, pat := range r.patterns {
		if MatchURLPattern(pat, p) {
			return true
		}
	}
	return false
}

// Registry is an ordered set of named filter registrations backed by an
// explicit name -> Factory table. It is filled once during startup and is not
// safe for concurrent mutation.
type Registry struct {
	level     string
	factories map[string]Factory
	regs      []*Registration
}

func NewRegistry(level string, factories map[string]Factory) *Registry {
	return &Registry{
		level:     level,
		factories: factories,
	}
}

func (g *Registry) Level() string { return g.level }

// Add registers the filter called name. Names must have a factory and may be
// registered once per registry.
func (g *Registry) Add(name string) (*Registration, error) {
	if _, ok := g.factories[name]; !ok {
		return nil, xerrors.Wrapf(ErrUnknownFilter, "%s filter %q", g.level, name)
	}
	if _, ok := g.Lookup(name); ok {
		return nil, xerrors.Wrapf(ErrDuplicateFilter, "%s filter %q", g.level, name)
	}
	reg := &Registration{name: name, params: map[string]string{}}
	g.regs = append(g.regs, reg)
	return reg, nil
}

func (g *Registry) Lookup(name string) (*Registration, bool) {
	for _, reg := range g.regs {
		if reg.name == name {
			return reg, true
		}
	}
	return nil, false
}

func (g *Registry) Len() int { return len(g.regs) }

// Registrations returns registrations in the order they were added.
func (g *Registry) Registrations() []*Registration {
	return slices.Clone(g.regs)
}

// Middlewares instantiates every registration, first registered first in the
// returned slice (outermost once passed to httpmw.Chain). Filters with URL
// patterns are bypassed for requests whose path does not match.
func (g *Registry) Middlewares() ([]Middleware, error) {
	out := make([]Middleware, 0, len(g.regs))
	for _, reg := range g.regs {
		mw, err := g.factories[reg.name](reg.Params())
		if err != nil {
			return nil, xerrors.Wrapf(err, "init %s filter %q", g.level, reg.name)
		}
		out = append(out, gate(reg, mw))
	}
	return out, nil
}

func gate(reg *Registration, mw Middleware) Middleware {
	if len(reg.patterns) == 0 {
		return mw
	}
	return func(next http.Handler) http.Handler {
		filtered := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reg.matches(r.URL.Path) {
				filtered.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidURLPattern reports whether p is a supported servlet-style pattern:
// "/*" and "/" (everything), "/prefix/*", "*.ext", or an exact path.
func ValidURLPattern(p string) bool {
	switch {
	case p == "":
		return false
	case strings.HasPrefix(p, "*."):
		return len(p) > 2 && !strings.ContainsAny(p[2:], "/*")
	case !strings.HasPrefix(p, "/"):
		return false
	case strings.HasSuffix(p, "/*"):
		return !strings.Contains(strings.TrimSuffix(p, "/*"), "*")
	default:
		return !strings.Contains(p, "*")
	}
}

// MatchURLPattern matches a request path against a servlet-style URL
// pattern. "/api/*" matches "/api" as well as anything below it.
func MatchURLPattern(pattern, p string) bool {
	switch {
	case pattern == "/*" || pattern == "/":
		return true
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "/*")
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	case strings.HasPrefix(pattern, "*."):
		return path.Ext(p) == pattern[1:]
	default:
		return p == pattern
	}
}

// PatternPrefix returns the path prefix a "/prefix/*" pattern covers, "" for
// "/*" and "/". ok is false for extension and exact patterns, which cannot
// anchor a mounted router.
func PatternPrefix(pattern string) (prefix string, ok bool) {
	switch {
	case pattern == "/" || pattern == "/*":
		return "", true
	case strings.HasSuffix(pattern, "/*") && ValidURLPattern(pattern):
		return strings.TrimSuffix(pattern, "/*"), true
	default:
		return "", false
	}
}
