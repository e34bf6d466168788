package app

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmoiron/questcompanion/internal/settings"
)

const maxBody = 1 << 20

func (a *App) apiRoutes(r chi.Router) {
	r.Get("/catalog", a.apiCatalog)
	r.Post("/catalog/reload", a.apiCatalogReload)
	r.Get("/view", a.apiView)
	r.Get("/status", a.apiStatus)
	r.Get("/progress", a.apiProgress)
	r.Post("/progress/read", a.apiProgressRead)
	r.Get("/progress/path", a.apiProgressPath)
	r.Put("/progress/path", a.apiSetProgressPath)
	r.Get("/progress/default-path", a.apiDefaultProgressPath)
	r.Get("/overrides", a.apiOverrides)
	r.Put("/overrides/{key}", a.apiSetOverride)
	r.Get("/preferences", a.apiPreferences)
	r.Patch("/preferences", a.apiSetPreferences)
	r.Get("/version", a.apiVersion)
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, true, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (a *App) apiCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.C.Catalog())
}

func (a *App) apiCatalogReload(w http.ResponseWriter, r *http.Request) {
	if err := a.C.ReloadCatalog(); err != nil {
		writeError(w, true, "reloading catalog: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, a.C.View())
}

func (a *App) apiView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.C.View())
}

func (a *App) apiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.C.Status())
}

// apiProgress returns the last successfully read snapshot, which may be
// older than the file when the latest read failed.
func (a *App) apiProgress(w http.ResponseWriter, r *http.Request) {
	snap, path := a.C.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"path": nullable(path), "data": snap})
}

// apiProgressRead re-reads the active progress file on demand. A failed
// read yields null data and an error event.
func (a *App) apiProgressRead(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"path": nullable(a.C.ActivePath()), "data": a.C.ReadProgress()})
}

func (a *App) apiProgressPath(w http.ResponseWriter, r *http.Request) {
	stored, err := a.C.ProgressPath()
	if err != nil {
		writeError(w, true, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": nullable(stored), "active": nullable(a.C.ActivePath())})
}

// apiSetProgressPath returns the effective path, or null when the path was
// cleared or rejected. Rejections are reported on the event stream.
func (a *App) apiSetProgressPath(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path *string `json:"path"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	var path string
	if body.Path != nil {
		path = *body.Path
	}
	effective, err := a.C.SetProgressPath(path)
	if err != nil {
		writeError(w, true, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": nullable(effective)})
}

func (a *App) apiDefaultProgressPath(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"path": nullable(a.C.DefaultProgressPath())})
}

func (a *App) apiOverrides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.C.Overrides())
}

func (a *App) apiSetOverride(w http.ResponseWriter, r *http.Request) {
	key := overrideKey(r)
	if key == "" {
		writeError(w, true, "missing quest key", http.StatusBadRequest)
		return
	}
	var body struct {
		Completed *bool `json:"completed"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Completed == nil {
		writeError(w, true, "completed is required", http.StatusBadRequest)
		return
	}
	overrides, err := a.C.SetOverride(key, *body.Completed)
	if err != nil {
		writeError(w, true, "saving override: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, overrides)
}

func (a *App) apiPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.C.Preferences())
}

func (a *App) apiSetPreferences(w http.ResponseWriter, r *http.Request) {
	var u settings.PreferencesUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	prefs, err := a.C.SetPreferences(u)
	if err != nil {
		writeError(w, true, "saving preferences: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (a *App) apiVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": a.Version})
}
