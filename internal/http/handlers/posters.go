package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"posterd/internal/domain"
	"posterd/internal/middleware"
	"posterd/pkg/zip"
)

const (
	maxUploadBytes = 20 << 20
	maxBatchSize   = 50
	uploadPrefix   = "uploads"
	outputPrefix   = "output"
)

type createPosterResponse struct {
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
}

type posterAsset struct {
	ResultName string `json:"result_name"`
	Index      int    `json:"index"`
	StorageKey string `json:"storage_key"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bytes      int64  `json:"bytes"`
	Checksum   string `json:"checksum,omitempty"`
}

type posterResponse struct {
	TaskID    string            `json:"task_id"`
	Status    domain.TaskStatus `json:"status"`
	Message   string            `json:"message,omitempty"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Assets    []posterAsset     `json:"assets"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CreatePoster accepts either a multipart upload with an `image` file or a JSON body whose
// image_path names an already stored key, and queues an image2poster task.
func (a *App) CreatePoster(w http.ResponseWriter, r *http.Request) {
	taskID := uuid.NewString()
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		req domain.PosterRequest
		err error
	)
	if mediaType == "multipart/form-data" {
		req, err = a.posterRequestFromForm(w, r, taskID)
	} else {
		req, err = posterRequestFromJSON(r)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large",
				fmt.Sprintf("upload exceeds %s", humanize.IBytes(maxUploadBytes)))
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := validatePosterRequest(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req.OutputPath = outputPrefix

	raw, err := json.Marshal(req)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to encode request")
		return
	}
	task := &domain.Task{ID: taskID, Type: domain.TaskTypeImage2Poster, Request: raw}
	if err := a.Tasks.Create(r.Context(), task); err != nil {
		a.log().Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("task_id", taskID).
			Msg("api: enqueue poster task failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue task")
		return
	}
	a.log().Info().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("task_id", task.ID).
		Msg("api: poster task queued")
	a.json(w, http.StatusAccepted, createPosterResponse{TaskID: task.ID, Status: task.Status})
}

func (a *App) posterRequestFromForm(w http.ResponseWriter, r *http.Request, taskID string) (domain.PosterRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return domain.PosterRequest{}, err
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return domain.PosterRequest{}, errors.New("image file is required")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.PosterRequest{}, err
	}
	if len(data) == 0 {
		return domain.PosterRequest{}, errors.New("image file is empty")
	}

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "image.png"
	}

	req := domain.PosterRequest{
		InputPrompt:      r.FormValue("input_prompt"),
		ShowMiddleResult: formBool(r, "show_middle_result"),
	}
	if req.BatchSize, err = formInt(r, "batchsize"); err != nil {
		return domain.PosterRequest{}, err
	}
	if req.Width, err = formInt(r, "width"); err != nil {
		return domain.PosterRequest{}, err
	}
	if req.Height, err = formInt(r, "height"); err != nil {
		return domain.PosterRequest{}, err
	}
	if v := strings.TrimSpace(r.FormValue("prompt_optimizer")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.PosterRequest{}, errors.New("prompt_optimizer must be a boolean")
		}
		req.PromptOptimizer = &b
	}
	if v := strings.TrimSpace(r.FormValue("seed")); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.PosterRequest{}, errors.New("seed must be an integer")
		}
		req.Seed = &seed
	}
	// Rejected forms must not leave an upload behind.
	if err := validatePosterRequest(req); err != nil {
		return domain.PosterRequest{}, err
	}
	if req.ImagePath, err = a.Store.Write(r.Context(), path.Join(uploadPrefix, taskID, name), data); err != nil {
		return domain.PosterRequest{}, fmt.Errorf("store upload: %w", err)
	}
	return req, nil
}

func posterRequestFromJSON(r *http.Request) (domain.PosterRequest, error) {
	var req domain.PosterRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		return domain.PosterRequest{}, errors.New("invalid payload")
	}
	if strings.TrimSpace(req.ImagePath) == "" {
		return domain.PosterRequest{}, errors.New("image_path is required")
	}
	key := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(req.ImagePath)), "/")
	if !strings.HasPrefix(key, uploadPrefix+"/") {
		return domain.PosterRequest{}, fmt.Errorf("image_path must reference a key under %s/", uploadPrefix)
	}
	req.ImagePath = key
	return req, nil
}

func validatePosterRequest(req domain.PosterRequest) error {
	if strings.TrimSpace(req.InputPrompt) == "" {
		return errors.New("input_prompt is required")
	}
	if req.BatchSize != nil && (*req.BatchSize < 0 || *req.BatchSize > maxBatchSize) {
		return fmt.Errorf("batchsize must be between 0 and %d", maxBatchSize)
	}
	if req.Width != nil && *req.Width <= 0 {
		return errors.New("width must be positive")
	}
	if req.Height != nil && *req.Height <= 0 {
		return errors.New("height must be positive")
	}
	return nil
}

func formBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue(key)))
	return b
}

func formInt(r *http.Request, key string) (*int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &n, nil
}

// GetPoster reports task status, the processor result and the stored images.
func (a *App) GetPoster(w http.ResponseWriter, r *http.Request) {
	task, ok := a.loadTask(w, r)
	if !ok {
		return
	}
	assets, err := a.Assets.ListByTaskID(r.Context(), task.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load assets")
		return
	}
	resp := posterResponse{
		TaskID:    task.ID,
		Status:    task.Status,
		Message:   task.Message,
		Result:    task.Result,
		Assets:    make([]posterAsset, 0, len(assets)),
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
	for _, as := range assets {
		resp.Assets = append(resp.Assets, posterAsset{
			ResultName: as.ResultName,
			Index:      as.Index,
			StorageKey: as.StorageKey,
			Width:      as.Width,
			Height:     as.Height,
			Bytes:      as.Bytes,
			Checksum:   as.Checksum,
		})
	}
	a.json(w, http.StatusOK, resp)
}

// DownloadPosterZip streams every stored image of a finished task as one archive.
func (a *App) DownloadPosterZip(w http.ResponseWriter, r *http.Request) {
	task, ok := a.loadTask(w, r)
	if !ok {
		return
	}
	if !task.Status.Terminal() {
		a.error(w, http.StatusConflict, "not_ready", "task is still "+string(task.Status))
		return
	}
	assets, err := a.Assets.ListByTaskID(r.Context(), task.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load assets")
		return
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "task has no images")
		return
	}

	files := make([]zip.Asset, 0, len(assets))
	for _, as := range assets {
		data, err := a.Store.Read(r.Context(), as.StorageKey)
		if err != nil {
			a.log().Error().Err(err).Str("task_id", task.ID).Str("key", as.StorageKey).Msg("api: read asset failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to read asset")
			return
		}
		files = append(files, zip.Asset{Filename: as.StorageKey, Data: data, Modified: as.CreatedAt})
	}
	archive, err := zip.ArchiveAssets(files)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", task.ID+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) loadTask(w http.ResponseWriter, r *http.Request) (*domain.Task, bool) {
	taskID := chi.URLParam(r, "task_id")
	task, err := a.Tasks.GetByID(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "task not found")
			return nil, false
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load task")
		return nil, false
	}
	return task, true
}
