// Package handler contains HTTP handlers for the Tradevine API.
//
// This file implements the job and quote endpoints:
//
//   - POST   /api/jobs                  -> CreateJob
//   - GET    /api/jobs                  -> ListJobs
//   - GET    /api/jobs/saved            -> ListSavedJobs
//   - GET    /api/jobs/{id}             -> GetJob
//   - POST   /api/jobs/{id}/save        -> SaveJob
//   - DELETE /api/jobs/{id}/save        -> UnsaveJob
//   - POST   /api/jobs/{id}/quotes      -> SubmitQuote
//   - GET    /api/jobs/{id}/quotes      -> ListQuotes
//   - POST   /api/jobs/{id}/accept      -> AcceptQuote
//   - POST   /api/jobs/{id}/complete    -> MarkComplete
//   - POST   /api/jobs/{id}/cancel      -> Cancel
//   - POST   /api/quotes/{id}/withdraw  -> WithdrawQuote
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/harlowfield/tradevine/internal/auth"
	"github.com/harlowfield/tradevine/internal/domain"
	"github.com/harlowfield/tradevine/internal/service"
)

// JobHandler handles job and quote requests.
type JobHandler struct {
	jobs   service.JobService
	logger *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs service.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// RegisterRoutes registers job routes. requireUser guards every route;
// quoteGuard adds the stricter rate limit on quote submission.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux, requireUser, quoteGuard func(http.Handler) http.Handler) {
	mux.Handle("POST /api/jobs", requireUser(http.HandlerFunc(h.CreateJob)))
	mux.Handle("GET /api/jobs", requireUser(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /api/jobs/saved", requireUser(http.HandlerFunc(h.ListSavedJobs)))
	mux.Handle("GET /api/jobs/{id}", requireUser(http.HandlerFunc(h.GetJob)))
	mux.Handle("POST /api/jobs/{id}/save", requireUser(http.HandlerFunc(h.SaveJob)))
	mux.Handle("DELETE /api/jobs/{id}/save", requireUser(http.HandlerFunc(h.UnsaveJob)))
	mux.Handle("POST /api/jobs/{id}/quotes", quoteGuard(requireUser(http.HandlerFunc(h.SubmitQuote))))
	mux.Handle("GET /api/jobs/{id}/quotes", requireUser(http.HandlerFunc(h.ListQuotes)))
	mux.Handle("POST /api/jobs/{id}/accept", requireUser(http.HandlerFunc(h.AcceptQuote)))
	mux.Handle("POST /api/jobs/{id}/complete", requireUser(http.HandlerFunc(h.MarkComplete)))
	mux.Handle("POST /api/jobs/{id}/cancel", requireUser(http.HandlerFunc(h.Cancel)))
	mux.Handle("POST /api/quotes/{id}/withdraw", requireUser(http.HandlerFunc(h.WithdrawQuote)))
}

type createJobRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Budget      *int64 `json:"budget,omitempty"`
}

type jobResponse struct {
	ID              uuid.UUID        `json:"id"`
	CustomerID      uuid.UUID        `json:"customer_id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Status          string           `json:"status"`
	Budget          *int64           `json:"budget,omitempty"`
	AcceptedQuoteID *uuid.UUID       `json:"accepted_quote_id,omitempty"`
	TradespersonID  *uuid.UUID       `json:"tradesperson_id,omitempty"`
	PaymentStatus   string           `json:"payment_status,omitempty"`
	CustomerContact *contactResponse `json:"customer_contact,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

// contactResponse is only populated when the viewer's tier grants
// contact visibility; lower tiers get the job with this field absent.
type contactResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func toJobResponse(j *domain.Job) jobResponse {
	return jobResponse{
		ID:              j.ID,
		CustomerID:      j.CustomerID,
		Title:           j.Title,
		Description:     j.Description,
		Status:          string(j.Status),
		Budget:          j.Budget,
		AcceptedQuoteID: j.AcceptedQuoteID,
		TradespersonID:  j.TradespersonID,
		PaymentStatus:   string(j.PaymentStatus),
		CreatedAt:       j.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

type quoteResponse struct {
	ID             uuid.UUID         `json:"id"`
	JobID          uuid.UUID         `json:"job_id"`
	TradespersonID uuid.UUID         `json:"tradesperson_id"`
	Price          int64             `json:"price"`
	DepositAmount  int64             `json:"deposit_amount"`
	LineItems      []domain.LineItem `json:"line_items,omitempty"`
	Status         string            `json:"status"`
	CreatedAt      string            `json:"created_at"`
}

func toQuoteResponse(q *domain.Quote) quoteResponse {
	return quoteResponse{
		ID:             q.ID,
		JobID:          q.JobID,
		TradespersonID: q.TradespersonID,
		Price:          q.Price,
		DepositAmount:  q.DepositAmount,
		LineItems:      q.LineItems,
		Status:         string(q.Status),
		CreatedAt:      q.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "invalid request body"))
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), user, domain.JobParams{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobs, err := h.jobs.ListJobs(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": out})
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	view, err := h.jobs.GetJob(r.Context(), user, jobID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := toJobResponse(view.Job)
	if view.CustomerContact != nil {
		resp.CustomerContact = &contactResponse{
			Name:  view.CustomerContact.Name,
			Email: view.CustomerContact.Email,
			Phone: view.CustomerContact.Phone,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *JobHandler) SaveJob(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.jobs.SaveJob(r.Context(), user, jobID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) UnsaveJob(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.jobs.UnsaveJob(r.Context(), user, jobID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) ListSavedJobs(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobs, err := h.jobs.ListSavedJobs(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": out})
}

type submitQuoteRequest struct {
	Price         int64             `json:"price"`
	DepositAmount int64             `json:"deposit_amount"`
	LineItems     []domain.LineItem `json:"line_items,omitempty"`
}

func (h *JobHandler) SubmitQuote(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req submitQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "invalid request body"))
		return
	}

	quote, err := h.jobs.SubmitQuote(r.Context(), user, jobID, domain.QuoteParams{
		Price:         req.Price,
		DepositAmount: req.DepositAmount,
		LineItems:     req.LineItems,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toQuoteResponse(quote))
}

func (h *JobHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	quotes, err := h.jobs.ListQuotes(r.Context(), user, jobID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]quoteResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, toQuoteResponse(q))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": out})
}

type acceptQuoteRequest struct {
	QuoteID uuid.UUID `json:"quote_id"`
}

func (h *JobHandler) AcceptQuote(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req acceptQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuoteID == uuid.Nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "quote_id is required"))
		return
	}

	job, err := h.jobs.AcceptQuote(r.Context(), user, jobID, req.QuoteID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *JobHandler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	job, err := h.jobs.MarkComplete(r.Context(), user, jobID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

type cancelJobRequest struct {
	Reason string `json:"reason"`
}

func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	jobID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req cancelJobRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // reason is optional

	if err := h.jobs.Cancel(r.Context(), user, jobID, req.Reason); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) WithdrawQuote(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	quoteID, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.jobs.WithdrawQuote(r.Context(), user, quoteID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pathUUID parses a UUID path parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.Invalid("", "invalid "+name+" parameter")
	}
	return id, nil
}
