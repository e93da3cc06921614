package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/soaringjerry/icc-checker/internal/middleware"
	"github.com/soaringjerry/icc-checker/internal/services"
	"github.com/soaringjerry/icc-checker/internal/utils"
)

// Pinger is the health probe of the backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LoginMetrics counts rejected sign-ins.
type LoginMetrics interface {
	LoginFailed(reason string)
}

// Deps are the collaborators wired by the server.
type Deps struct {
	Machine  *services.Machine
	Auth     *services.AuthService
	Admin    *services.AdminService
	Gate     *services.AccessGate
	Sessions *SessionRegistry
	// LoginLimiter throttles /api/auth/login per client IP. Nil disables it.
	LoginLimiter *middleware.IPRateLimiter
	// Metrics is served at /metrics when set.
	Metrics      http.Handler
	LoginMetrics LoginMetrics
	Store        Pinger
	Commit       string
	BuildTime    string
}

type Router struct {
	machine  *services.Machine
	auth     *services.AuthService
	admin    *services.AdminService
	gate     *services.AccessGate
	sessions *SessionRegistry
	limiter  *middleware.IPRateLimiter
	metrics  http.Handler
	logins   LoginMetrics
	store    Pinger
	commit   string
	built    string
}

func NewRouter(d Deps) *Router {
	sessions := d.Sessions
	if sessions == nil {
		sessions = NewSessionRegistry(DefaultSessionTTL)
	}
	return &Router{
		machine:  d.Machine,
		auth:     d.Auth,
		admin:    d.Admin,
		gate:     d.Gate,
		sessions: sessions,
		limiter:  d.LoginLimiter,
		metrics:  d.Metrics,
		logins:   d.LoginMetrics,
		store:    d.Store,
		commit:   d.Commit,
		built:    d.BuildTime,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stores", rt.handleStores)

	mux.HandleFunc("POST /api/sessions", rt.handleNewSession)
	mux.HandleFunc("GET /api/sessions/{id}", rt.withSession(rt.handleGetSession))
	mux.HandleFunc("POST /api/sessions/{id}/precheck", rt.withSession(rt.handlePreCheck))
	mux.HandleFunc("POST /api/sessions/{id}/start", rt.withSession(rt.handleBegin))
	mux.HandleFunc("GET /api/sessions/{id}/start", rt.withSession(rt.handleStartView))
	mux.HandleFunc("POST /api/sessions/{id}/view-existing", rt.withSession(rt.handleViewExisting))
	mux.HandleFunc("POST /api/sessions/{id}/checklist", rt.withSession(rt.handleOpenChecklist))
	mux.HandleFunc("GET /api/sessions/{id}/checklist", rt.withSession(rt.handleChecklist))
	mux.HandleFunc("PUT /api/sessions/{id}/items/{item}", rt.withSession(rt.handleEditItem))
	mux.HandleFunc("POST /api/sessions/{id}/finish", rt.withSession(rt.handleFinish))
	mux.HandleFunc("GET /api/sessions/{id}/summary", rt.withSession(rt.handleSummary))
	mux.HandleFunc("GET /api/sessions/{id}/mail", rt.withSession(rt.handleMail))
	mux.HandleFunc("POST /api/sessions/{id}/restart", rt.withSession(rt.handleRestart))
	mux.HandleFunc("POST /api/sessions/{id}/admin", rt.withSession(rt.handleEnterAdmin))
	mux.HandleFunc("POST /api/sessions/{id}/admin/leave", rt.withSession(rt.handleLeaveAdmin))
	mux.HandleFunc("POST /api/sessions/{id}/admin/{screen}", rt.withSession(rt.handleAdminNavigate))

	var login http.Handler = http.HandlerFunc(rt.handleLogin)
	if rt.limiter != nil {
		login = rt.limiter.Middleware(login)
	}
	mux.Handle("POST /api/auth/login", login)
	mux.HandleFunc("POST /api/auth/logout", rt.handleLogout)

	mux.HandleFunc("GET /api/admin/stores", rt.requireAdmin(rt.handleAdminListStores))
	mux.HandleFunc("POST /api/admin/stores", rt.requireAdmin(rt.handleAdminAddStore))
	mux.HandleFunc("PUT /api/admin/stores/{id}", rt.requireAdmin(rt.handleAdminUpdateStore))
	mux.HandleFunc("DELETE /api/admin/stores/{id}", rt.requireAdmin(rt.handleAdminRemoveStore))
	mux.HandleFunc("GET /api/admin/items", rt.requireAdmin(rt.handleAdminListItems))
	mux.HandleFunc("POST /api/admin/items", rt.requireAdmin(rt.handleAdminAddItem))
	mux.HandleFunc("PUT /api/admin/items/{id}", rt.requireAdmin(rt.handleAdminUpdateItem))
	mux.HandleFunc("DELETE /api/admin/items/{id}", rt.requireAdmin(rt.handleAdminRemoveItem))
	mux.HandleFunc("GET /api/admin/audits", rt.requireAdmin(rt.handleAdminAudits))
	mux.HandleFunc("GET /api/admin/audits/export", rt.requireAdmin(rt.handleAdminExport))
	mux.HandleFunc("GET /api/admin/activity", rt.requireAdmin(rt.handleAdminActivity))

	mux.HandleFunc("GET /health", rt.handleHealth)
	mux.HandleFunc("GET /version", rt.handleVersion)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics)
	}
}

var (
	errSessionNotFound = &services.ServiceError{Code: services.ErrorNotFound, Message: "session not found", Key: "error.session_not_found"}
	errBadJSON         = services.NewInvalidError("malformed JSON body")
)

var statusByCode = map[services.ErrorCode]int{
	services.ErrorInvalid:         http.StatusBadRequest,
	services.ErrorUnauthorized:    http.StatusUnauthorized,
	services.ErrorForbidden:       http.StatusForbidden,
	services.ErrorNotFound:        http.StatusNotFound,
	services.ErrorConflict:        http.StatusConflict,
	services.ErrorTooManyRequests: http.StatusTooManyRequests,
	services.ErrorUnavailable:     http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a ServiceError to its HTTP status and a localized body.
// Anything else is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	loc := middleware.LocaleFromContext(r.Context())
	se, ok := services.AsServiceError(err)
	if !ok {
		log.Printf("api: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "internal",
			"message": utils.T(loc, "error.internal"),
		})
		return
	}
	status, ok := statusByCode[se.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := map[string]any{"error": string(se.Code)}
	if se.Key != "" {
		body["message"] = utils.T(loc, se.Key)
	} else {
		body["message"] = utils.T(loc, "error."+string(se.Code))
		body["reason"] = se.Message
	}
	if len(se.Details) > 0 {
		details := make([]string, 0, len(se.Details))
		for _, k := range se.Details {
			details = append(details, utils.T(loc, k))
		}
		body["details"] = details
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *services.Session)

// withSession resolves {id} and holds the session for the duration of the
// handler. A concurrent event on the same session gets 429.
func (rt *Router) withSession(fn sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := rt.sessions.Get(r.PathValue("id"))
		if !ok {
			writeError(w, r, errSessionNotFound)
			return
		}
		if err := s.Acquire(); err != nil {
			writeError(w, r, err)
			return
		}
		defer s.Release()
		fn(w, r, s)
	}
}

type adminHandler func(w http.ResponseWriter, r *http.Request, u *services.User)

// requireAdmin runs the access gate on every request.
func (rt *Router) requireAdmin(fn adminHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.gate == nil || rt.admin == nil {
			writeError(w, r, services.ErrAdminRequired)
			return
		}
		u, err := rt.gate.Check(r.Context(), middleware.PrincipalFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		fn(w, r, u)
	}
}

// GET /api/stores
func (rt *Router) handleStores(w http.ResponseWriter, r *http.Request) {
	stores, err := rt.machine.Stores(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

// POST /api/sessions
func (rt *Router) handleNewSession(w http.ResponseWriter, r *http.Request) {
	s := rt.machine.NewSession()
	rt.sessions.Put(s)
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// GET /api/sessions/{id}
func (rt *Router) handleGetSession(w http.ResponseWriter, r *http.Request, s *services.Session) {
	resp := map[string]any{"session": s.Snapshot()}
	if s.Phase == services.PhasePreCheck {
		resp["gate"] = gateJSON(r, s.Gate())
	}
	writeJSON(w, http.StatusOK, resp)
}

func gateJSON(r *http.Request, g services.PreCheckGate) map[string]any {
	loc := middleware.LocaleFromContext(r.Context())
	texts := make([]string, 0, len(g.Messages))
	for _, k := range g.Messages {
		texts = append(texts, utils.T(loc, k))
	}
	out := map[string]any{"gate": g, "messages": texts}
	if g.Latest != nil {
		out["latest"] = g.Latest
	}
	return out
}

// POST /api/sessions/{id}/precheck
func (rt *Router) handlePreCheck(w http.ResponseWriter, r *http.Request, s *services.Session) {
	var in services.PreCheckInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	gate, err := rt.machine.UpdatePreCheck(r.Context(), s, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateJSON(r, gate))
}

// POST /api/sessions/{id}/start
func (rt *Router) handleBegin(w http.ResponseWriter, r *http.Request, s *services.Session) {
	view, err := rt.machine.Begin(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /api/sessions/{id}/start
func (rt *Router) handleStartView(w http.ResponseWriter, r *http.Request, s *services.Session) {
	view, err := rt.machine.StartView(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/sessions/{id}/view-existing
func (rt *Router) handleViewExisting(w http.ResponseWriter, r *http.Request, s *services.Session) {
	view, err := rt.machine.ViewExisting(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSummary(w, r, view)
}

// POST /api/sessions/{id}/checklist
func (rt *Router) handleOpenChecklist(w http.ResponseWriter, r *http.Request, s *services.Session) {
	view, err := rt.machine.OpenChecklist(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeChecklist(w, r, view)
}

// GET /api/sessions/{id}/checklist
func (rt *Router) handleChecklist(w http.ResponseWriter, r *http.Request, s *services.Session) {
	view, err := rt.machine.Checklist(s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeChecklist(w, r, view)
}

func writeChecklist(w http.ResponseWriter, r *http.Request, v *services.ChecklistView) {
	loc := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"checklist":       v,
		"completion_text": utils.Tf(loc, "completion", v.Completion),
	})
}

func writeSummary(w http.ResponseWriter, r *http.Request, v *services.SummaryView) {
	loc := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":         v,
		"completion_text": utils.Tf(loc, "completion", v.Completion),
		"overall_text":    utils.T(loc, v.Overall.MessageKey()),
	})
}

type itemEditRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// PUT /api/sessions/{id}/items/{item}
func (rt *Router) handleEditItem(w http.ResponseWriter, r *http.Request, s *services.Session) {
	var req itemEditRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	edit := services.ItemEdit{Comment: req.Comment}
	if strings.TrimSpace(req.Status) != "" {
		st, err := services.ParseStatus(req.Status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		edit.Status = st
	}
	view, err := rt.machine.EditItem(s, r.PathValue("item"), edit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeChecklist(w, r, view)
}

// POST /api/sessions/{id}/finish
func (rt *Router) handleFinish(w http.ResponseWriter, r *http.Request, s *services.Session) {
	var req struct {
		Comment string `json:"comment"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := rt.machine.Finish(r.Context(), s, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSummary(w, r, view)
}

// GET /api/sessions/{id}/summary
func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request, s *services.Session) {
	view, err := rt.machine.Summary(s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSummary(w, r, view)
}

// GET /api/sessions/{id}/mail?to=
func (rt *Router) handleMail(w http.ResponseWriter, r *http.Request, s *services.Session) {
	draft, err := rt.machine.MailDraft(s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject": draft.Subject,
		"body":    draft.Body,
		"mailto":  draft.MailtoURL(r.URL.Query().Get("to")),
	})
}

// POST /api/sessions/{id}/restart
func (rt *Router) handleRestart(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if err := rt.machine.Restart(s); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// POST /api/sessions/{id}/admin
func (rt *Router) handleEnterAdmin(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if err := rt.machine.EnterAdmin(s); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

var adminScreens = map[string]services.Phase{
	"dashboard":  services.PhaseAdminDashboard,
	"stores":     services.PhaseStoreAdmin,
	"categories": services.PhaseCategoryAdmin,
}

// POST /api/sessions/{id}/admin/{screen}
func (rt *Router) handleAdminNavigate(w http.ResponseWriter, r *http.Request, s *services.Session) {
	target, ok := adminScreens[r.PathValue("screen")]
	if !ok {
		writeError(w, r, services.NewNotFoundError("unknown admin screen"))
		return
	}
	p := middleware.PrincipalFromContext(r.Context())
	if err := rt.machine.AdminNavigate(r.Context(), s, p, target); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// POST /api/sessions/{id}/admin/leave
func (rt *Router) handleLeaveAdmin(w http.ResponseWriter, r *http.Request, s *services.Session) {
	if err := rt.machine.LeaveAdmin(s); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := rt.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if rt.logins != nil {
			switch err {
			case services.ErrInvalidCredentials:
				rt.logins.LoginFailed("invalid")
			case services.ErrAccessDenied:
				rt.logins.LoginFailed("denied")
			}
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/auth/logout
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := rt.auth.SignOut(r.Context(), middleware.PrincipalFromContext(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/admin/stores
func (rt *Router) handleAdminListStores(w http.ResponseWriter, r *http.Request, _ *services.User) {
	stores, err := rt.admin.ListStores(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

// POST /api/admin/stores
func (rt *Router) handleAdminAddStore(w http.ResponseWriter, r *http.Request, u *services.User) {
	var req struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := rt.admin.AddStore(r.Context(), u.Email, req.Name, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// PUT /api/admin/stores/{id}
func (rt *Router) handleAdminUpdateStore(w http.ResponseWriter, r *http.Request, u *services.User) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.admin.UpdateStoreCode(r.Context(), u.Email, r.PathValue("id"), req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DELETE /api/admin/stores/{id}
func (rt *Router) handleAdminRemoveStore(w http.ResponseWriter, r *http.Request, u *services.User) {
	if err := rt.admin.RemoveStore(r.Context(), u.Email, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/admin/items
func (rt *Router) handleAdminListItems(w http.ResponseWriter, r *http.Request, _ *services.User) {
	items, err := rt.admin.ListItems(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// POST /api/admin/items
func (rt *Router) handleAdminAddItem(w http.ResponseWriter, r *http.Request, u *services.User) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
		Order       int    `json:"order"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := rt.admin.AddItem(r.Context(), u.Email, req.Title, req.Description, req.Icon, req.Order)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// PUT /api/admin/items/{id}
func (rt *Router) handleAdminUpdateItem(w http.ResponseWriter, r *http.Request, u *services.User) {
	var patch services.ItemPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.admin.UpdateItem(r.Context(), u.Email, r.PathValue("id"), patch); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DELETE /api/admin/items/{id}
func (rt *Router) handleAdminRemoveItem(w http.ResponseWriter, r *http.Request, u *services.User) {
	if err := rt.admin.RemoveItem(r.Context(), u.Email, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/admin/audits?store=
func (rt *Router) handleAdminAudits(w http.ResponseWriter, r *http.Request, _ *services.User) {
	recs, err := rt.admin.ListAudits(r.Context(), r.URL.Query().Get("store"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": recs})
}

// GET /api/admin/audits/export?store=
func (rt *Router) handleAdminExport(w http.ResponseWriter, r *http.Request, _ *services.User) {
	b, err := rt.admin.ExportAudits(r.Context(), r.URL.Query().Get("store"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=audits.csv")
	_, _ = w.Write(b)
}

// GET /api/admin/activity?limit=
func (rt *Router) handleAdminActivity(w http.ResponseWriter, r *http.Request, _ *services.User) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, services.NewInvalidError("limit must be a positive integer"))
			return
		}
		limit = n
	}
	entries, err := rt.admin.ListActivity(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

// GET /health
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	status := http.StatusOK
	resp := map[string]any{
		"ok":         true,
		"name":       "ICC Checker API",
		"locale":     locale,
		"msg":        utils.T(locale, "health.ok"),
		"commit":     rt.commit,
		"build_time": rt.built,
	}
	if rt.store != nil {
		if err := rt.store.Ping(r.Context()); err != nil {
			log.Printf("api: health: store ping: %v", err)
			status = http.StatusServiceUnavailable
			resp["ok"] = false
			resp["msg"] = utils.T(locale, "error.unavailable")
		}
	}
	writeJSON(w, status, resp)
}

// GET /version
func (rt *Router) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commit":     rt.commit,
		"build_time": rt.built,
	})
}
