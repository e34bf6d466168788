package app

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-sprout/sprout"
	"github.com/go-sprout/sprout/registry/std"

	"github.com/jmoiron/questcompanion/internal/app/textfmt"
	"github.com/jmoiron/questcompanion/internal/companion"
	"github.com/jmoiron/questcompanion/internal/reconcile"
	"github.com/jmoiron/questcompanion/internal/settings"
)

type App struct {
	C       *companion.Companion
	Version string
	Verbose int
	tpl     *template.Template
	events  *broker
}

//go:embed templates/*.gohtml static/*
var templatesFS embed.FS

func New(c *companion.Companion, version string, verbose int) (*App, error) {
	a := &App{C: c, Version: version, Verbose: verbose, events: newBroker()}

	// Load templates from embedded FS
	sub, _ := fs.Sub(templatesFS, "templates")
	sh := sprout.New()
	if err := sh.AddRegistries(std.NewRegistry()); err != nil {
		return nil, err
	}
	funcs := sh.Build()
	funcs["text"] = textfmt.Format
	funcs["percent"] = func(g reconcile.GroupView) string { return strconv.FormatFloat(g.Percent(), 'f', 0, 64) }
	funcs["pathEscape"] = url.PathEscape
	tpl, err := template.New("base").Funcs(template.FuncMap(funcs)).ParseFS(sub, "*.gohtml")
	if err != nil {
		return nil, err
	}
	a.tpl = tpl

	a.events.attach(c)
	return a, nil
}

// Close disconnects event-stream clients and stops listening to the
// companion.
func (a *App) Close() { a.events.close() }

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if a.Verbose > 0 {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Static assets
	mime.AddExtensionType(".css", "text/css")
	staticFS, _ := fs.Sub(templatesFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	r.Get("/", a.index)
	r.Get("/group/{group}", a.groupDetail)
	r.Post("/progress", a.progressSave)
	r.Post("/override/{key}", a.overrideSave)
	r.Post("/preferences", a.preferencesSave)
	r.Get("/events", a.events.serve)

	r.Route("/api", a.apiRoutes)

	return r
}

func (a *App) render(w http.ResponseWriter, name string, data M) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.tpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// baseData returns common template data to keep the sidebar consistent.
func (a *App) baseData(r *http.Request, title string) M {
	prefs := a.C.Preferences()
	// ?dark= forces the theme for this render only
	themeDark := prefs.DarkMode
	if v := strings.TrimSpace(r.URL.Query().Get("dark")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			themeDark = b
		}
	}
	view := a.C.View()
	stored, err := a.C.ProgressPath()
	if err != nil {
		slog.Warn("reading progress path", "error", err)
	}
	return M{
		"Title":         title,
		"Version":       a.Version,
		"View":          view,
		"Groups":        view.Groups,
		"Prefs":         prefs,
		"Status":        a.C.Status(),
		"ProgressPath":  stored,
		"ActivePath":    a.C.ActivePath(),
		"DefaultPath":   a.C.DefaultProgressPath(),
		"ThemeDark":     themeDark,
		"SelectedGroup": "",
		"Msg":           strings.TrimSpace(r.URL.Query().Get("msg")),
	}
}

// index handles GET "/".
func (a *App) index(w http.ResponseWriter, r *http.Request) {
	data := a.baseData(r, "Quest Companion")
	a.render(w, "index.gohtml", data)
}

// groupDetail handles GET "/group/{group}", optionally filtered by ?q=.
func (a *App) groupDetail(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "group")
	data := a.baseData(r, "")
	view := data["View"].(reconcile.View)
	g := view.Group(id)
	if g == nil {
		http.NotFound(w, r)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	prefs := a.C.Preferences()

	data["Title"] = g.Title
	data["Group"] = g
	data["SelectedGroup"] = g.ID
	data["Query"] = q
	data["Quests"] = filterQuests(*g, prefs.HideCompleted, searchTerms(q))
	a.render(w, "group.gohtml", data)
}

// progressSave handles POST "/progress" from the progress path form.
func (a *App) progressSave(w http.ResponseWriter, r *http.Request) {
	ajax := isAjax(r)
	if err := r.ParseForm(); err != nil {
		writeError(w, ajax, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	path := strings.TrimSpace(r.Form.Get("path"))
	if r.Form.Has("clear") {
		path = ""
	}
	effective, err := a.C.SetProgressPath(path)
	if err != nil {
		writeError(w, ajax, err.Error(), http.StatusInternalServerError)
		return
	}

	var msg string
	switch {
	case path == "":
		msg = "Progress file cleared."
	case effective == "":
		msg = "Could not read " + path + ": " + a.C.Status().Message
	default:
		msg = "Watching " + effective
	}
	if ajax {
		writeJSON(w, http.StatusOK, map[string]any{"ok": path == "" || effective != "", "path": nullable(effective), "message": msg})
		return
	}
	redirectBack(w, r, msg)
}

// overrideSave handles POST "/override/{key}" with completed=true|false.
func (a *App) overrideSave(w http.ResponseWriter, r *http.Request) {
	ajax := isAjax(r)
	if err := r.ParseForm(); err != nil {
		writeError(w, ajax, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	key := overrideKey(r)
	if key == "" {
		writeError(w, ajax, "missing quest key", http.StatusBadRequest)
		return
	}
	completed, err := strconv.ParseBool(r.Form.Get("completed"))
	if err != nil {
		writeError(w, ajax, "completed must be true or false", http.StatusBadRequest)
		return
	}
	slog.Debug("setting override", "key", key, "completed", completed)
	overrides, err := a.C.SetOverride(key, completed)
	if err != nil {
		writeError(w, ajax, "saving override: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if ajax {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "overrides": overrides})
		return
	}
	redirectBack(w, r, "")
}

// preferencesSave handles POST "/preferences". Only fields present in the
// form are changed.
func (a *App) preferencesSave(w http.ResponseWriter, r *http.Request) {
	ajax := isAjax(r)
	if err := r.ParseForm(); err != nil {
		writeError(w, ajax, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	u, err := preferencesFromForm(r.Form)
	if err != nil {
		writeError(w, ajax, err.Error(), http.StatusBadRequest)
		return
	}
	prefs, err := a.C.SetPreferences(u)
	if err != nil {
		writeError(w, ajax, "saving preferences: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if ajax {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "preferences": prefs})
		return
	}
	redirectBack(w, r, "")
}

func isAjax(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest" || strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, isAjax bool, msg string, code int) {
	if isAjax {
		writeJSON(w, code, map[string]any{"ok": false, "error": msg})
		return
	}
	http.Error(w, msg, code)
}

// redirectBack sends the browser to the form's "next" page, or "/", with an
// optional flash message.
func redirectBack(w http.ResponseWriter, r *http.Request, msg string) {
	next := r.Form.Get("next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/"
	}
	if msg != "" {
		sep := "?"
		if strings.Contains(next, "?") {
			sep = "&"
		}
		next += sep + "msg=" + url.QueryEscape(msg)
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// overrideKey returns the decoded {key} route parameter.
func overrideKey(r *http.Request) string {
	return pathParam(r, "key")
}

// pathParam returns the named route parameter decoded exactly once. chi
// matches against RawPath when the request path held escapes that Path
// cannot represent, so only then is the parameter still encoded.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if s, err := url.PathUnescape(v); err == nil {
		return s
	}
	return v
}

func preferencesFromForm(form url.Values) (u settings.PreferencesUpdate, err error) {
	fields := []struct {
		name string
		dst  **bool
	}{
		{"dark_mode", &u.DarkMode},
		{"hide_completed", &u.HideCompleted},
		{"hide_descriptions", &u.HideDescriptions},
	}
	for _, f := range fields {
		if !form.Has(f.name) {
			continue
		}
		b, perr := strconv.ParseBool(form.Get(f.name))
		if perr != nil {
			return u, fmt.Errorf("%s must be true or false", f.name)
		}
		*f.dst = &b
	}
	return u, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
