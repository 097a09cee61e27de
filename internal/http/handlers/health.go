package handlers

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status  string    `json:"status"`
	Service string    `json:"service"`
	Time    time.Time `json:"time"`
}

// Health is the liveness check of the poster API. It does not touch the task store.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	a.json(w, http.StatusOK, healthResponse{Status: "ok", Service: "posterd", Time: time.Now().UTC()})
}
