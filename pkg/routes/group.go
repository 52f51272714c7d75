// Package routes lets each domain handler declare its endpoints as data. The
// API module mounts every declared group on one ServeMux.
package routes

import "net/http"

// Group collects routes under a shared path prefix. Children nest below it.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds every route of groups, children included, to mux.
func Register(mux *http.ServeMux, groups ...Group) {
	walk(groups, "", func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, h)
	})
}

// Patterns lists the ServeMux pattern of every route in groups in the order
// Register would add them.
func Patterns(groups ...Group) []string {
	var out []string
	walk(groups, "", func(pattern string, _ http.HandlerFunc) {
		out = append(out, pattern)
	})
	return out
}

func walk(groups []Group, parent string, fn func(pattern string, h http.HandlerFunc)) {
	for _, g := range groups {
		prefix := parent + g.Prefix
		for _, r := range g.Routes {
			fn(r.pattern(prefix), r.Handler)
		}
		walk(g.Children, prefix, fn)
	}
}
