// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Transport-level errors raised by handlers before reaching the engine.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("malformed request")
)

var statusByCode = map[shared.Code]struct {
	status int
	title  string
}{
	shared.CodeUnbalancedEntry:      {http.StatusUnprocessableEntity, "Unbalanced Entry"},
	shared.CodeRateNotFound:         {http.StatusUnprocessableEntity, "Exchange Rate Not Found"},
	shared.CodeOverpayment:          {http.StatusUnprocessableEntity, "Overpayment"},
	shared.CodeConfigurationMissing: {http.StatusFailedDependency, "Configuration Missing"},
	shared.CodeReferenceNotFound:    {http.StatusNotFound, "Reference Not Found"},
	shared.CodeDuplicateInstrument:  {http.StatusUnprocessableEntity, "Duplicate Instrument"},
	shared.CodeInvalidState:         {http.StatusConflict, "Invalid State"},
	shared.CodeValidation:           {http.StatusBadRequest, "Validation Failed"},
	shared.CodeConflict:             {http.StatusConflict, "Conflict"},
}

// StatusFor returns the HTTP status and title used for err.
func StatusFor(err error) (int, string, shared.Code) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized", ""
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "Bad Request", shared.CodeValidation
	}
	code := shared.CodeOf(err)
	if mapped, ok := statusByCode[code]; ok {
		return mapped.status, mapped.title, code
	}
	return http.StatusInternalServerError, "Internal Error", shared.CodeInternal
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal
// errors hide their detail.
func RespondError(w http.ResponseWriter, err error) {
	status, title, code := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	WriteProblem(w, ProblemDetail{Title: title, Status: status, Detail: detail, Code: string(code)})
}
