package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/core/ports"
	"github.com/dealtrace/dealtrace/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ingestor ports.FilingIngestor
	deals    ports.DealReader
	resolver ports.AlertResolver
	pipeline ports.PipelineRunner
	filings  ports.FilingRepository
	alerts   ports.AlertRepository
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	ingestor ports.FilingIngestor,
	deals ports.DealReader,
	resolver ports.AlertResolver,
	pipeline ports.PipelineRunner,
	filings ports.FilingRepository,
	alerts ports.AlertRepository,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		ingestor: ingestor,
		deals:    deals,
		resolver: resolver,
		pipeline: pipeline,
		filings:  filings,
		alerts:   alerts,
		metrics:  serverMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/filings", rt.ingestFiling)
	mux.HandleFunc("/v1/filings/", rt.getFiling)
	mux.HandleFunc("/v1/deals", rt.listDeals)
	mux.HandleFunc("/v1/deals/", rt.dealSubresource)
	mux.HandleFunc("/v1/alerts", rt.listAlerts)
	mux.HandleFunc("/v1/alerts/", rt.resolveAlert)
	mux.HandleFunc("/v1/pipeline/run", rt.runPipeline)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestFiling registers a filing for asynchronous processing. With only
// the identifiers the filing index is pulled from the registry; a body
// carrying form metadata is registered as-is.
func (rt *Router) ingestFiling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		CIK             string `json:"cik"`
		AccessionNumber string `json:"accession_number"`
		FormType        string `json:"form_type"`
		CompanyName     string `json:"company_name"`
		FilingURL       string `json:"filing_url"`
		RawHTML         string `json:"raw_html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	var filing *domain.Filing
	var err error
	if req.FormType == "" && req.RawHTML == "" {
		filing, err = rt.ingestor.IngestByAccession(r.Context(), req.CIK, req.AccessionNumber)
	} else {
		filing, err = rt.ingestor.Ingest(r.Context(), &domain.Filing{
			CIK:             req.CIK,
			AccessionNumber: req.AccessionNumber,
			FormType:        domain.FormType(req.FormType),
			CompanyName:     req.CompanyName,
			FilingURL:       req.FilingURL,
			RawHTML:         req.RawHTML,
		})
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, filing)
}

func (rt *Router) getFiling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/filings/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filing id is required"})
		return
	}

	filing, err := rt.filings.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	exhibits, err := rt.filings.ListExhibits(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"filing":   filing,
		"exhibits": exhibits,
	})
}

func (rt *Router) listDeals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := r.URL.Query()
	filter := domain.DealFilter{
		State:     query.Get("state"),
		MarketTag: query.Get("market_tag"),
		Query:     query.Get("q"),
		Limit:     parseIntParam(query.Get("limit")),
		Offset:    parseIntParam(query.Get("offset")),
	}
	if raw := query.Get("sponsor_backed"); raw != "" {
		backed, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sponsor_backed must be a boolean"})
			return
		}
		filter.SponsorBacked = &backed
	}

	deals, err := rt.deals.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": deals, "count": len(deals)})
}

// dealSubresource dispatches /v1/deals/{id}, /v1/deals/{id}/financings
// and /v1/deals/{id}/facts.
func (rt *Router) dealSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/deals/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deal id is required"})
		return
	}

	switch sub {
	case "":
		deal, err := rt.deals.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deal)
	case "financings":
		events, err := rt.deals.ListFinancings(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"financing_events": events, "count": len(events)})
	case "facts":
		facts, err := rt.deals.ListFacts(r.Context(), domain.FactFilter{
			DealID: id,
			Kind:   r.URL.Query().Get("kind"),
			Limit:  parseIntParam(r.URL.Query().Get("limit")),
			Offset: parseIntParam(r.URL.Query().Get("offset")),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"facts": facts, "count": len(facts)})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown deal resource"})
	}
}

func (rt *Router) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := r.URL.Query()
	filter := domain.AlertFilter{
		Kind:     query.Get("kind"),
		FilingID: query.Get("filing_id"),
		DealID:   query.Get("deal_id"),
		Limit:    parseIntParam(query.Get("limit")),
		Offset:   parseIntParam(query.Get("offset")),
	}
	if raw := query.Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "resolved must be a boolean"})
			return
		}
		filter.Resolved = &resolved
	}

	alerts, err := rt.alerts.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (rt *Router) resolveAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/alerts/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action != "resolve" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown alert action"})
		return
	}

	var req struct {
		ResolvedBy string              `json:"resolved_by"`
		Notes      string              `json:"notes"`
		Facts      []domain.AtomicFact `json:"facts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	alert, err := rt.resolver.Resolve(r.Context(), id, req.ResolvedBy, req.Notes, req.Facts)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAlertResolution(serviceName, string(alert.Kind))
		for _, fact := range req.Facts {
			rt.metrics.RecordManualFact(serviceName, string(fact.Kind))
		}
	}
	writeJSON(w, http.StatusOK, alert)
}

func (rt *Router) runPipeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	report, err := rt.pipeline.RunPass(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordPipelineTrigger(serviceName)
	}
	writeJSON(w, http.StatusOK, report)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseIntParam(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
