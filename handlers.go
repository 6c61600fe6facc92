package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kwv/fsaudit/audit"
)

// changeFunc is invoked after every successful session mutation with the
// name of the change (used as the recomputation trigger label).
type changeFunc func(trigger string)

type valueRequest struct {
	Value *float64 `json:"value"`
}

type sourceRequest struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

type settingsRequest struct {
	Resolution     *string `json:"resolution"`
	Profile        *string `json:"profile"`
	CoverageFactor *int    `json:"coverageFactor"`
}

type profileInfo struct {
	ID    audit.ConservatismProfile `json:"id"`
	Label string                    `json:"label"`
}

// newHTTPServer creates the HTTP API around a session
func newHTTPServer(session *audit.Session, metrics *audit.Metrics, onChange changeFunc, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onChange == nil {
		onChange = func(string) {}
	}
	h := &apiHandler{session: session, metrics: metrics, onChange: onChange, logger: logger.Named("http")}

	r := mux.NewRouter()

	r.HandleFunc("/health", h.health).Methods("GET")
	r.HandleFunc("/models", h.models).Methods("GET")
	r.HandleFunc("/budget", h.budget).Methods("GET")
	r.HandleFunc("/report", h.report).Methods("GET")
	r.HandleFunc("/summary", h.summary).Methods("GET")
	r.HandleFunc("/settings", h.getSettings).Methods("GET")
	r.HandleFunc("/settings", h.putSettings).Methods("PUT")

	r.HandleFunc("/trials", h.listTrials).Methods("GET")
	r.HandleFunc("/trials", h.addTrial).Methods("POST")
	r.HandleFunc("/trials", h.clearTrials).Methods("DELETE")
	r.HandleFunc("/trials/{index:[0-9]+}", h.setTrial).Methods("PUT")
	r.HandleFunc("/trials/{index:[0-9]+}", h.removeTrial).Methods("DELETE")

	r.HandleFunc("/sources", h.listSources).Methods("GET")
	r.HandleFunc("/sources", h.addSource).Methods("POST")
	r.HandleFunc("/sources/{name}", h.setSource).Methods("PUT")
	r.HandleFunc("/sources/{name}", h.removeSource).Methods("DELETE")
	r.HandleFunc("/sensor", h.setSensor).Methods("PUT")

	r.HandleFunc("/budget.svg", h.chart(false)).Methods("GET")
	r.HandleFunc("/budget.png", h.chart(true)).Methods("GET")
	r.HandleFunc("/card.png", h.card).Methods("GET")

	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h.logger.Debug("request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote", req.RemoteAddr))
		r.ServeHTTP(w, req)
	})
}

type apiHandler struct {
	session  *audit.Session
	metrics  *audit.Metrics
	onChange changeFunc
	logger   *zap.Logger
}

func (h *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Trials    int       `json:"trials"`
	}{
		Status:    "ok",
		Timestamp: time.Now(),
		Trials:    len(h.session.Trials()),
	})
}

func (h *apiHandler) models(w http.ResponseWriter, r *http.Request) {
	profiles := make([]profileInfo, 0, len(audit.Profiles))
	for _, p := range audit.Profiles {
		profiles = append(profiles, profileInfo{ID: p, Label: p.Label()})
	}
	h.writeJSON(w, http.StatusOK, struct {
		Models   []audit.ModelSpec `json:"models"`
		Profiles []profileInfo     `json:"profiles"`
	}{audit.Catalog, profiles})
}

func (h *apiHandler) budget(w http.ResponseWriter, r *http.Request) {
	msg := audit.NewBudgetMessage(h.session.ID(), h.session.Settings(), h.session.Budget())
	h.writeJSON(w, http.StatusOK, msg)
}

func (h *apiHandler) report(w http.ResponseWriter, r *http.Request) {
	text, err := h.session.Report()
	h.metrics.ObserveReport(err)
	if err != nil {
		h.logger.Warn("report requested without trials")
		h.writeError(w, err)
		return
	}
	writeText(w, text)
}

func (h *apiHandler) summary(w http.ResponseWriter, r *http.Request) {
	writeText(w, h.session.Summary())
}

func (h *apiHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.session.Settings())
}

// putSettings validates every field before applying any of them
func (h *apiHandler) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		model   audit.ResolutionModel
		profile audit.ConservatismProfile
		err     error
	)
	if req.Resolution != nil {
		if model, err = audit.ParseResolutionModel(*req.Resolution); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.Profile != nil {
		if profile, err = audit.ParseProfile(*req.Profile); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.CoverageFactor != nil {
		if _, err = audit.NewCoverageFactor(*req.CoverageFactor); err != nil {
			h.writeError(w, err)
			return
		}
	}

	if req.Resolution != nil {
		if err := h.session.SetResolutionModel(model); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.Profile != nil {
		if err := h.session.SetConservatismProfile(profile); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if req.CoverageFactor != nil {
		if err := h.session.SetCoverageFactor(*req.CoverageFactor); err != nil {
			h.writeError(w, err)
			return
		}
	}

	h.onChange("settings")
	h.writeJSON(w, http.StatusOK, h.session.Settings())
}

func (h *apiHandler) listTrials(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]float64{"trials": h.session.Trials()})
}

func (h *apiHandler) addTrial(w http.ResponseWriter, r *http.Request) {
	value, ok := h.decodeValue(w, r)
	if !ok {
		return
	}
	index, err := h.session.AddTrial(value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.onChange("trial_added")
	h.writeJSON(w, http.StatusCreated, map[string]int{"index": index})
}

func (h *apiHandler) setTrial(w http.ResponseWriter, r *http.Request) {
	index, _ := strconv.Atoi(mux.Vars(r)["index"])
	value, ok := h.decodeValue(w, r)
	if !ok {
		return
	}
	if err := h.session.SetTrial(index, value); err != nil {
		h.writeError(w, err)
		return
	}
	h.onChange("trial_updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) removeTrial(w http.ResponseWriter, r *http.Request) {
	index, _ := strconv.Atoi(mux.Vars(r)["index"])
	if err := h.session.RemoveTrial(index); err != nil {
		h.writeError(w, err)
		return
	}
	h.onChange("trial_removed")
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) clearTrials(w http.ResponseWriter, r *http.Request) {
	h.session.ClearTrials()
	h.onChange("trials_cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) listSources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]audit.ErrorSource{"sources": h.session.ErrorSources()})
}

func (h *apiHandler) addSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		http.Error(w, "value is required", http.StatusBadRequest)
		return
	}
	if err := h.session.AddErrorSource(req.Name, *req.Value); err != nil {
		h.writeError(w, err)
		return
	}
	h.onChange("source_added")
	w.WriteHeader(http.StatusCreated)
}

func (h *apiHandler) setSource(w http.ResponseWriter, r *http.Request) {
	value, ok := h.decodeValue(w, r)
	if !ok {
		return
	}
	if err := h.session.SetErrorSource(mux.Vars(r)["name"], value); err != nil {
		h.writeError(w, err)
		return
	}
	h.onChange("source_updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) removeSource(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RemoveErrorSource(mux.Vars(r)["name"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.onChange("source_removed")
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) setSensor(w http.ResponseWriter, r *http.Request) {
	value, ok := h.decodeValue(w, r)
	if !ok {
		return
	}
	if err := h.session.SetSensorUncertainty(value); err != nil {
		h.writeError(w, err)
		return
	}
	h.onChange("sensor_updated")
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) chart(asPNG bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := h.session.Snapshot()
		chart := audit.NewBudgetChart(snap.Budget, snap.State.ErrorSources)
		w.Header().Set("Cache-Control", "no-cache")

		var err error
		if asPNG {
			w.Header().Set("Content-Type", "image/png")
			err = chart.RenderToPNG(w)
		} else {
			w.Header().Set("Content-Type", "image/svg+xml")
			err = chart.RenderToSVG(w)
		}
		if err != nil {
			h.logger.Error("rendering budget chart", zap.Bool("png", asPNG), zap.Error(err))
		}
	}
}

func (h *apiHandler) card(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	title := h.session.Settings().Resolution.Label()
	if err := audit.RenderSummaryCard(w, title, h.session.Budget()); err != nil {
		h.logger.Error("rendering summary card", zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (h *apiHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *apiHandler) decodeValue(w http.ResponseWriter, r *http.Request) (float64, bool) {
	var req valueRequest
	if !h.decode(w, r, &req) {
		return 0, false
	}
	if req.Value == nil {
		http.Error(w, "value is required", http.StatusBadRequest)
		return 0, false
	}
	return *req.Value, true
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", zap.Error(err))
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusForError(err))
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(text))
}

// statusForError maps session errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, audit.ErrIndexOutOfRange), errors.Is(err, audit.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, audit.ErrManagedSource), errors.Is(err, audit.ErrDuplicateSource):
		return http.StatusConflict
	case errors.Is(err, audit.ErrNoData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}
