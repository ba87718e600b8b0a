package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"wallet/internal/core"
	"wallet/internal/events"
	"wallet/internal/log"
	"wallet/internal/view"
)

type transactionJSON struct {
	ID          string `json:"id"`
	Index       int    `json:"index"`
	Type        string `json:"type"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

func newTransactionJSON(index int, t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Index:       index,
		Type:        t.Type.String(),
		Date:        t.Date,
		Description: t.Description,
		Amount:      t.Amount.String(),
	}
}

type listResponse struct {
	Filter       view.Criteria     `json:"filter"`
	Count        int               `json:"count"`
	Total        int               `json:"total"`
	Transactions []transactionJSON `json:"transactions"`
}

type totalsResponse struct {
	core.FormattedTotals
	Count int `json:"count"`
}

type importedResponse struct {
	Reloaded bool   `json:"reloaded"`
	Key      string `json:"key"`
	Revision uint64 `json:"revision"`
	Count    int    `json:"count"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the storage backend answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if s.ready == nil {
		checks["storage"] = "ok"
	} else if err := s.ready(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	checks["ledger"] = map[string]any{
		"transactions": s.svc.Store().Len(),
		"revision":     s.svc.Store().Revision(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrorResponse)
	metric("ledger_transactions", "gauge", "Transactions currently in the ledger", s.svc.Store().Len())
	metric("ledger_revision", "counter", "Committed ledger revisions", s.svc.Store().Revision())
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	if s.rowsCache != nil {
		stats := s.rowsCache.Stats()
		metric("view_cache_entries", "gauge", "Memoised projections", stats.Size)
		metric("view_cache_hits_total", "counter", "Projection cache hits", stats.Hits)
		metric("view_cache_misses_total", "counter", "Projection cache misses", stats.Misses)
	}
	if s.hub != nil {
		metric("websocket_clients", "gauge", "Connected change feed clients", s.hub.Len())
	}
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}

// handleListTransactions projects the ledger through ?type= and ?q= when
// given, otherwise through the active filter.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	c, explicit, err := ParseCriteria(r.URL.Query())
	if err != nil {
		UnprocessableEntityError(r, err.Error()).Write(w)
		return
	}

	var rows []view.Row
	if explicit {
		rows = s.svc.Project(r.Context(), c)
	} else {
		c = s.svc.Filter()
		rows = s.svc.GetFilteredView(r.Context())
	}

	out := listResponse{
		Filter:       c,
		Count:        len(rows),
		Total:        s.svc.Store().Len(),
		Transactions: make([]transactionJSON, 0, len(rows)),
	}
	for _, row := range rows {
		out.Transactions = append(out.Transactions, newTransactionJSON(row.Index, row.Transaction))
	}
	NewResponse().JSON(out).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError(r, "invalid request body").Write(w)
		return
	}

	t, err := s.svc.AddTransaction(r.Context(), p.Input())
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}

	index, _ := s.svc.Store().IndexOf(t.ID)
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+t.ID).
		JSON(newTransactionJSON(index, t)).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("id"))
	if err := s.svc.DeleteTransaction(r.Context(), id); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

// handleDeleteAt deletes by canonical position, ?index=N.
func (s *Server) handleDeleteAt(w http.ResponseWriter, r *http.Request) {
	index, err := ParseIndex(r.URL.Query().Get("index"))
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	if err := s.svc.DeleteAt(r.Context(), index); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

// handleTotals sums the full ledger; filters have no effect.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.svc.GetTotals(r.Context())
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().JSON(totalsResponse{
		FormattedTotals: totals.Format(),
		Count:           s.svc.Store().Len(),
	}).Write(w)
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.svc.Filter()).Write(w)
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError(r, "invalid request body").Write(w)
		return
	}
	if err := s.svc.SetFilter(p.Criteria()); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().JSON(s.svc.Filter()).Write(w)
}

// handleStorageImported is how an external writer says it replaced the slot.
// The reload has finished by the time the response is written. A body naming
// another slot is acknowledged without reloading.
func (s *Server) handleStorageImported(w http.ResponseWriter, r *http.Request) {
	store := s.svc.Store()
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError(r, "invalid request body").Write(w)
		return
	}
	if key := p.Get("key"); key != "" && key != store.Key() {
		NewResponse().Status(http.StatusAccepted).JSON(importedResponse{Key: key}).Write(w)
		return
	}
	if s.publisher == nil {
		ErrorResponse(r, http.StatusServiceUnavailable, "import signal is not wired").Write(w)
		return
	}

	logger := log.FromContext(r.Context())
	logger.InfoContext(r.Context(), "Storage import signalled",
		log.FieldOperation, log.OpImport,
		log.FieldKey, store.Key(),
		"source", p.Get("source"))

	if err := s.publisher.Publish(r.Context(), events.StorageImported); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().JSON(importedResponse{
		Reloaded: true,
		Key:      store.Key(),
		Revision: store.Revision(),
		Count:    store.Len(),
	}).Write(w)
}
