// Package main is the entry point of the application
package main

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tecu23/match-server/pkg/game"
)

type replayResponse struct {
	SessionID string          `json:"session_id"`
	Status    game.Status     `json:"status"`
	Outcome   string          `json:"outcome,omitempty"`
	Moves     []game.Snapshot `json:"moves"`
}

// handleReplay handles the GET /replay/{id} endpoint. Ended sessions
// stay in the registry, so their move log remains fetchable.
func (app *application) handleReplay(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		app.writeJSON(w, http.StatusBadRequest, map[string]string{
			"message": "invalid session id",
		})
		return
	}

	session, err := app.Registry.Find(id)
	if err != nil {
		app.writeJSON(w, http.StatusNotFound, map[string]string{
			"message": "session not found",
		})
		return
	}

	resp := replayResponse{
		SessionID: session.ID.String(),
		Status:    session.Status(),
		Moves:     session.MoveLog(),
	}
	if outcome := session.Outcome(); outcome != nil {
		resp.Outcome = string(outcome.Kind)
	}

	app.writeJSON(w, http.StatusOK, resp)
}
