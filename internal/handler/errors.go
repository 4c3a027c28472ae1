package handler

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"keysaccounting-api/internal/repository"
	"keysaccounting-api/internal/service"
	"keysaccounting-api/pkg/apierror"
	"keysaccounting-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// writeServiceError maps domain errors to API errors.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	response.Error(w, toAPIError(r, err))
}

func toAPIError(r *http.Request, err error) *apierror.Error {
	var (
		onLoan            *service.KeyOnLoanError
		ambiguousKey      *service.AmbiguousKeyError
		ambiguousEmployee *service.AmbiguousEmployeeError
		apiErr            *apierror.Error
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &onLoan):
		return apierror.Conflict(onLoan.Error()).WithCode(apierror.CodeKeyOnLoan).WithDetails(
			apierror.FieldError{Field: "holder", Message: onLoan.Entry.EmployeeName()},
		)
	case errors.As(err, &ambiguousKey):
		return apierror.Conflict("Several keys match the query").WithCode(apierror.CodeAmbiguousMatch).WithDetails(candidates(ambiguousKey.Candidates)...)
	case errors.As(err, &ambiguousEmployee):
		return apierror.Conflict("Several employees match the query").WithCode(apierror.CodeAmbiguousMatch).WithDetails(candidates(ambiguousEmployee.Candidates)...)
	case errors.Is(err, service.ErrRequestAlreadyPending):
		return apierror.Conflict(err.Error()).WithCode(apierror.CodeRequestPending)
	case errors.Is(err, service.ErrAlreadyRegistered):
		return apierror.Conflict(err.Error()).WithCode(apierror.CodeAlreadyRegistered)
	case errors.Is(err, service.ErrRequestLapsed):
		return apierror.Gone("Request is no longer pending")
	case errors.Is(err, service.ErrForbidden):
		return apierror.Forbidden("")
	case errors.Is(err, service.ErrInvalidEmployee):
		return apierror.BadRequest(err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return apierror.NotFound(err.Error())
	case errors.Is(err, service.ErrNoApprover):
		return apierror.ServiceUnavailable("No approver is registered")
	case repository.IsStoreUnavailable(err):
		log.Printf("[Handler] %s %s: %v", r.Method, r.URL.Path, err)
		return apierror.ServiceUnavailable("Key store is unavailable")
	default:
		log.Printf("[Handler] %s %s: unexpected error: %v", r.Method, r.URL.Path, err)
		return apierror.InternalError("")
	}
}

func candidates(names []string) []apierror.FieldError {
	details := make([]apierror.FieldError, len(names))
	for i, name := range names {
		details[i] = apierror.FieldError{Field: "candidate", Message: name}
	}
	return details
}

// keyParam returns the {key} URL parameter, unescaped.
func keyParam(r *http.Request) string {
	key := chi.URLParam(r, "key")
	if unescaped, err := url.PathUnescape(key); err == nil {
		return unescaped
	}
	return key
}
