package handler

import (
	"net/http"

	"keysaccounting-api/internal/middleware"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/service"
	"keysaccounting-api/pkg/apierror"
	"keysaccounting-api/pkg/response"
)

// EmployeeHandler handles employee registration.
type EmployeeHandler struct {
	directory *service.Directory
}

// NewEmployeeHandler creates a new employee handler.
func NewEmployeeHandler(directory *service.Directory) *EmployeeHandler {
	return &EmployeeHandler{directory: directory}
}

// RegisterBody is the body of POST /api/v1/employees.
type RegisterBody struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
}

// Register handles POST /api/v1/employees. The chat identity comes from the
// X-Employee-ID header; roles are granted by an administrator afterwards.
func (h *EmployeeHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetEmployeeID(r.Context())
	if id == "" {
		response.Error(w, apierror.Unauthorized("X-Employee-ID header is required"))
		return
	}

	var body RegisterBody
	if err := decode(r, &body); err != nil {
		response.Error(w, err)
		return
	}

	var details []apierror.FieldError
	if body.FirstName == "" {
		details = append(details, apierror.FieldError{Field: "first_name", Message: "must not be empty"})
	}
	if body.LastName == "" {
		details = append(details, apierror.FieldError{Field: "last_name", Message: "must not be empty"})
	}
	if body.PhoneNumber == "" {
		details = append(details, apierror.FieldError{Field: "phone_number", Message: "must not be empty"})
	}
	if len(details) > 0 {
		response.Error(w, apierror.ValidationError("invalid registration", details...))
		return
	}

	emp, err := h.directory.Register(r.Context(), model.Employee{
		TelegramID:  id,
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		PhoneNumber: body.PhoneNumber,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Created(w, emp)
}
