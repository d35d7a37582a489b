// Package main is the entry point of the application
package main

import "net/http"

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", app.handleHealth)
	mux.HandleFunc("GET /ws", app.authenticate(app.handleWebSocket))
	mux.HandleFunc("POST /find-match", app.handleFindMatch)
	mux.HandleFunc("GET /replay/{id}", app.handleReplay)

	return mux
}
