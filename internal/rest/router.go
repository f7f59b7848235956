package rest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/dfryer1193/css3blog/blog/domain"
)

var _ domain.URLResolver = (*Router)(nil)

var ErrUnknownRoute = errors.New("unknown route")

// Router keeps the path templates of named routes so URLs can be built from a name
type Router struct {
	mu     sync.RWMutex
	routes map[string]string
}

func NewRouter() *Router {
	return &Router{routes: map[string]string{}}
}

// Register names a gin style path template such as /blog/:slug/:id
func (r *Router) Register(name, pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[name] = pattern
}

// Reverse fills the template of the named route with params. Every parameter of the
// template must be given.
func (r *Router) Reverse(name string, params map[string]string) (string, error) {
	r.mu.RLock()
	pattern, ok := r.routes[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRoute, name)
	}

	segments := strings.Split(pattern, "/")
	for i, segment := range segments {
		if !strings.HasPrefix(segment, ":") {
			continue
		}

		key := segment[1:]
		value, ok := params[key]
		if !ok || value == "" {
			return "", fmt.Errorf("route %s: missing parameter %q", name, key)
		}
		segments[i] = url.PathEscape(value)
	}

	return strings.Join(segments, "/"), nil
}
