package observability

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jqs-project/jqs/internal/accountant"
	"github.com/jqs-project/jqs/internal/jobstore"
)

// Router is the scheduler daemon's read-only introspection surface. It
// never mutates the store; submit/cancel stay filesystem-only CLI
// operations.
type Router struct {
	store      *jobstore.Store
	accountant *accountant.Accountant
	metrics    *Metrics
}

func NewRouter(store *jobstore.Store, acct *accountant.Accountant, metrics *Metrics) *Router {
	return &Router{store: store, accountant: acct, metrics: metrics}
}

func (ro *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", ro.metrics.Handler())
	r.Get("/jobs", ro.handleListJobs)
	r.Get("/jobs/{id}", ro.handleGetJob)
	r.Get("/nodes", ro.handleNodes)
	return r
}

func (ro *Router) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	var all []jobstore.Record
	for _, dir := range []string{ro.store.Layout.QueueDir(), ro.store.Layout.RunningDir(), ro.store.Layout.FinishedDir()} {
		recs, err := ro.store.List(dir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		all = append(all, recs...)
	}
	writeJSON(w, http.StatusOK, all)
}

func (ro *Router) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid jobid", http.StatusBadRequest)
		return
	}
	_, rec, err := ro.store.Find(id)
	if err == jobstore.ErrNotFound {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type nodesResponse struct {
	CoresUsed  int `json:"cores_used"`
	CoresTotal int `json:"cores_total"`
	MemMBUsed  int `json:"mem_mb_used"`
	MemMBTotal int `json:"mem_mb_total"`
}

func (ro *Router) handleNodes(w http.ResponseWriter, _ *http.Request) {
	limits, err := ro.accountant.Limits()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	usage, err := ro.accountant.Usage()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nodesResponse{
		CoresUsed:  usage.CoresUsed,
		CoresTotal: limits.CoresTotal,
		MemMBUsed:  usage.MemMBUsed,
		MemMBTotal: limits.MemMBTotal,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
