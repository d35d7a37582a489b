// Package main is the entry point of the application
package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type findMatchRequest struct {
	PlayerID string `json:"player_id"`
}

// handleFindMatch handles the POST /find-match endpoint: the HTTP way of
// joining the pairing queue, equivalent to the join-queue socket event.
func (app *application) handleFindMatch(w http.ResponseWriter, r *http.Request) {
	var req findMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		app.writeJSON(w, http.StatusBadRequest, map[string]string{
			"message": "player_id is required",
		})
		return
	}

	if err := app.Hub.Enqueue(r.Context(), req.PlayerID); err != nil {
		// Queue backend trouble is reported to this requester only and
		// is retryable.
		app.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "error on server, try again",
		})
		return
	}

	app.writeJSON(w, http.StatusOK, map[string]string{
		"message": "successfully added to queue",
	})
}

func (app *application) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Error("failed to encode response", zap.Error(err))
	}
}
