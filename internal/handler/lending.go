package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"keysaccounting-api/internal/middleware"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/service"
	"keysaccounting-api/pkg/apierror"
	"keysaccounting-api/pkg/response"
	"keysaccounting-api/pkg/uid"
)

// LendingHandler handles key requests, approvals and returns.
type LendingHandler struct {
	lending          *service.LendingService
	overdueThreshold time.Duration
}

// NewLendingHandler creates a new lending handler.
func NewLendingHandler(lending *service.LendingService, overdueThreshold time.Duration) *LendingHandler {
	return &LendingHandler{
		lending:          lending,
		overdueThreshold: overdueThreshold,
	}
}

// CreateRequestBody is the body of POST /api/v1/requests.
type CreateRequestBody struct {
	Key     string `json:"key"`
	Comment string `json:"comment"`
}

// DecisionBody is the optional body of approve and deny calls.
type DecisionBody struct {
	RequestID string `json:"request_id"`
}

// ReturnResponse reports the outcome of a return.
type ReturnResponse struct {
	Returned bool             `json:"returned"`
	Message  string           `json:"message"`
	Entry    *model.LoanEntry `json:"entry,omitempty"`
}

// decision reads the optional body of approve and deny calls.
func decision(r *http.Request) (DecisionBody, error) {
	var body DecisionBody
	if err := decode(r, &body); err != nil {
		return body, err
	}
	if body.RequestID != "" && !uid.IsValid(body.RequestID) {
		return body, apierror.ValidationError("invalid request_id",
			apierror.FieldError{Field: "request_id", Message: "must be a UUID"})
	}
	return body, nil
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apierror.BadRequest("invalid JSON")
}

// CreateRequest handles POST /api/v1/requests
func (h *LendingHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := decode(r, &body); err != nil {
		response.Error(w, err)
		return
	}
	if strings.TrimSpace(body.Key) == "" {
		response.Error(w, apierror.ValidationError("key is required",
			apierror.FieldError{Field: "key", Message: "must not be empty"}))
		return
	}

	emp := middleware.GetEmployee(r.Context())
	req, err := h.lending.RequestKey(r.Context(), body.Key, emp.TelegramID, body.Comment)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Created(w, req)
}

// ListRequests handles GET /api/v1/requests
func (h *LendingHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.lending.PendingRequests())
}

// Approve handles POST /api/v1/requests/{key}/approve
func (h *LendingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	body, err := decision(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	emp := middleware.GetEmployee(r.Context())
	entry, err := h.lending.Approve(r.Context(), keyParam(r), service.ApproverContext{
		ApproverID: emp.TelegramID,
		RequestID:  body.RequestID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, entry)
}

// Deny handles POST /api/v1/requests/{key}/deny
func (h *LendingHandler) Deny(w http.ResponseWriter, r *http.Request) {
	body, err := decision(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	emp := middleware.GetEmployee(r.Context())
	req, err := h.lending.Deny(r.Context(), keyParam(r), service.ApproverContext{
		ApproverID: emp.TelegramID,
		RequestID:  body.RequestID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.OK(w, req)
}

// ReturnKey handles POST /api/v1/keys/{key}/return
func (h *LendingHandler) ReturnKey(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	entry, ok, err := h.lending.ReturnKey(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if !ok {
		response.OK(w, ReturnResponse{Returned: false, Message: "nothing to return"})
		return
	}
	response.OK(w, ReturnResponse{Returned: true, Message: "returned", Entry: entry})
}

// FindKeys handles GET /api/v1/keys?q=
func (h *LendingHandler) FindKeys(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		response.Error(w, apierror.ValidationError("q is required",
			apierror.FieldError{Field: "q", Message: "must not be empty"}))
		return
	}

	names, err := h.lending.FindKeys(r.Context(), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, names)
}

// GetKey handles GET /api/v1/keys/{key}
func (h *LendingHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	state, err := h.lending.KeyState(r.Context(), keyParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, state)
}

// KeyHistory handles GET /api/v1/keys/{key}/history
func (h *LendingHandler) KeyHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.lending.KeyHistory(r.Context(), keyParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, entries, 1, len(entries), int64(len(entries)))
}

// Outstanding handles GET /api/v1/loans/outstanding
func (h *LendingHandler) Outstanding(w http.ResponseWriter, r *http.Request) {
	entries, err := h.lending.OutstandingLoans(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, entries)
}

// Overdue handles GET /api/v1/loans/overdue?threshold=72h
func (h *LendingHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	threshold := h.overdueThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			response.Error(w, apierror.ValidationError("invalid threshold",
				apierror.FieldError{Field: "threshold", Message: "must be a duration such as 72h"}))
			return
		}
		threshold = parsed
	}

	entries, err := h.lending.OverdueScan(r.Context(), threshold)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, entries)
}

// MyKeys handles GET /api/v1/employees/me/keys
func (h *LendingHandler) MyKeys(w http.ResponseWriter, r *http.Request) {
	emp := middleware.GetEmployee(r.Context())
	entries, err := h.lending.MyKeys(r.Context(), emp.TelegramID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, entries)
}

// EmployeeHistoryResponse is the history of one employee.
type EmployeeHistoryResponse struct {
	Employee model.EmployeeSnapshot `json:"employee"`
	Entries  []model.LoanEntry      `json:"entries"`
}

// EmployeeHistory handles GET /api/v1/employees/history?name=
func (h *LendingHandler) EmployeeHistory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		response.Error(w, apierror.ValidationError("name is required",
			apierror.FieldError{Field: "name", Message: "must not be empty"}))
		return
	}

	who, entries, err := h.lending.EmployeeHistory(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, EmployeeHistoryResponse{Employee: who, Entries: entries})
}
