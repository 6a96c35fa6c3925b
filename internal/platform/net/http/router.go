package http

import "net/http"

// Handler is a plain handler function
type Handler = func(http.ResponseWriter, *http.Request)

// Router is what modules mount against. The API is read mostly so only
// GET and POST get shorthands; anything else goes through Method
type Router interface {
	Get(path string, h Handler)
	Post(path string, h Handler)
	Method(method, path string, h Handler)

	Handle(path string, h http.Handler)
	Use(mw ...func(http.Handler) http.Handler)
	Group(fn func(Router))
	Route(pattern string, fn func(Router))

	// Mux is the handler serving this router's routes
	Mux() http.Handler
}
