package api

import (
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// routeList returns one line per registered route, sorted.
func (s *Server) routeList() ([]string, error) {
	methods := make(map[string][]string)
	err := chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if method == http.MethodHead || method == http.MethodOptions {
			return nil
		}
		route = strings.TrimSuffix(route, "/*")
		if route != "/" {
			route = strings.TrimSuffix(route, "/")
		}
		methods[route] = append(methods[route], method)
		return nil
	})
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(methods))
	for route, ms := range methods {
		sort.Strings(ms)
		lines = append(lines, fmt.Sprintf("Endpoint: %q Methods: %q", route, strings.Join(ms, ", ")))
	}
	sort.Strings(lines)
	return lines, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	routes, err := s.routeList()
	if err != nil {
		s.logger.Error("walk routes", "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	var b strings.Builder
	b.WriteString("<h1>Nutrition and Obesity Data API</h1>")
	b.WriteString("<p>Available endpoints:</p><ul>")
	for _, r := range routes {
		b.WriteString("<li>" + html.EscapeString(r) + "</li>")
	}
	b.WriteString("</ul>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(b.String())); err != nil {
		s.logger.Error("write index", "error", err)
	}
}
