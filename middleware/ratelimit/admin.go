package ratelimit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"request-guard/middleware/ratelimit/application"
	"request-guard/middleware/ratelimit/domain"
	"request-guard/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
)

// Admin agrupa os componentes expostos pela API administrativa.
// Qualquer campo nil faz as rotas correspondentes responderem 404.
type Admin struct {
	Store   *infra.WindowStore
	Monitor *infra.Monitor
	Events  *infra.EventLog
	Logger  *slog.Logger
}

// AdminRouter monta as rotas de consulta e reset. Deve ser montado atrás de
// alguma autenticação; aqui não há nenhuma.
func AdminRouter(a Admin) chi.Router {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/stats", a.stats)
	r.Get("/violations", a.violations)
	r.Delete("/", a.clear)

	r.Route("/security", func(r chi.Router) {
		r.Get("/metrics", a.securityMetrics)
		r.Get("/suspicious/{ip}", a.suspicious)
	})

	r.Get("/store", a.storeStats)
	r.Delete("/keys", a.resetAll)
	r.Delete("/keys/{key}", a.resetKey)

	return r
}

func (a Admin) stats(w http.ResponseWriter, r *http.Request) {
	if a.Monitor == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, a.Monitor.Stats(r.URL.Query().Get("timeframe")))
}

func (a Admin) violations(w http.ResponseWriter, r *http.Request) {
	if a.Monitor == nil {
		http.NotFound(w, r)
		return
	}
	tf := r.URL.Query().Get("timeframe")
	writeJSON(w, http.StatusOK, map[string]any{
		"timeframeMs": domain.ParseTimeframe(tf).Milliseconds(),
		"violations":  a.Monitor.Violations(tf),
	})
}

func (a Admin) clear(w http.ResponseWriter, r *http.Request) {
	if a.Monitor == nil {
		http.NotFound(w, r)
		return
	}
	target, err := domain.ParseClearTarget(r.URL.Query().Get("target"))
	if err == nil {
		err = a.Monitor.Clear(target)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnknownClearTarget) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	a.Logger.Info("rate limit monitor cleared", "target", target)
	writeJSON(w, http.StatusOK, map[string]string{"cleared": string(target)})
}

func (a Admin) securityMetrics(w http.ResponseWriter, r *http.Request) {
	if a.Events == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, a.Events.Metrics())
}

func (a Admin) suspicious(w http.ResponseWriter, r *http.Request) {
	if a.Events == nil {
		http.NotFound(w, r)
		return
	}
	ip := application.NormalizeAddress(chi.URLParam(r, "ip"))
	writeJSON(w, http.StatusOK, map[string]any{
		"ip":         ip,
		"suspicious": a.Events.IsSuspicious(ip),
	})
}

func (a Admin) storeStats(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, a.Store.Stats())
}

func (a Admin) resetKey(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		http.NotFound(w, r)
		return
	}
	key := domain.Key(chi.URLParam(r, "key"))
	a.Store.Reset(key)
	a.Logger.Info("rate limit key reset", "key", key)
	w.WriteHeader(http.StatusNoContent)
}

func (a Admin) resetAll(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		http.NotFound(w, r)
		return
	}
	a.Store.ResetAll()
	a.Logger.Warn("rate limit store reset")
	w.WriteHeader(http.StatusNoContent)
}

// CSPReportHandler recebe relatórios de Content-Security-Policy enviados pelo
// navegador e os grava como eventos csp_violation.
func CSPReportHandler(events application.SecurityEvents, trustForwarded bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		var body struct {
			Report map[string]any `json:"csp-report"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil || body.Report == nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid csp report"))
			return
		}

		events.CSPViolation(DescriptorFromRequest(r, trustForwarded), body.Report)
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
