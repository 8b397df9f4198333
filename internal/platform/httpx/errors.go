package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sisco70/tabacchi/internal/shared"
)

type errorMapping struct {
	target error
	status int
	title  string
}

// Checked in order; the first match wins.
var domainErrors = []errorMapping{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrConfirmationRequired, http.StatusConflict, "Confirmation Required"},
	{shared.ErrInvalidState, http.StatusUnprocessableEntity, "Invalid State"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{shared.ErrStopped, http.StatusServiceUnavailable, "Stopped"},
}

// StatusOf returns the status code and problem title used for err.
func StatusOf(err error) (int, string) {
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return m.status, m.title
		}
	}
	return http.StatusInternalServerError, "Internal Error"
}

// RespondError maps domain errors to RFC7807 responses. The cause of an
// unmapped error is never sent to the client.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusOf(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	Problem(w, status, title, detail)
}

// DecodeValid decodes the JSON body into target and validates it. On failure
// the problem response is written and false returned; validation problems
// list the failing fields with their rule.
func DecodeValid(w http.ResponseWriter, r *http.Request, validate *validator.Validate, target any) bool {
	if err := DecodeJSON(r, target); err != nil {
		Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	err := validate.Struct(target)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	fields := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
	}
	ProblemWith(w, http.StatusBadRequest, "Validation Failed", err.Error(), map[string]any{"fields": fields})
	return false
}
