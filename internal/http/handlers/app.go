package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"posterd/internal/domain"
	"posterd/internal/infra"
)

// BlobStore is the storage the API reads uploads and results from.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

type App struct {
	Config *infra.Config
	Tasks  domain.TaskRepository
	Assets domain.AssetRepository
	Store  BlobStore
	Logger *infra.Logger
}

func NewApp(cfg *infra.Config, tasks domain.TaskRepository, assets domain.AssetRepository, store BlobStore, logger *infra.Logger) *App {
	return &App{Config: cfg, Tasks: tasks, Assets: assets, Store: store, Logger: infra.LoggerOrDiscard(logger)}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

func (a *App) log() *infra.Logger {
	return infra.LoggerOrDiscard(a.Logger)
}
