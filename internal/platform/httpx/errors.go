// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/franchise-ops/internal/shared"
)

// ErrValidation marks malformed request bodies and parameters.
var ErrValidation = errors.New("validation failed")

var kindStatus = map[shared.ErrorKind]int{
	shared.KindInvalidInput:      http.StatusBadRequest,
	shared.KindNotFound:          http.StatusNotFound,
	shared.KindConflict:          http.StatusConflict,
	shared.KindInvalidTransition: http.StatusConflict,
	shared.KindInsufficientStock: http.StatusUnprocessableEntity,
	shared.KindOverReturn:        http.StatusUnprocessableEntity,
	shared.KindWindowExpired:     http.StatusUnprocessableEntity,
	shared.KindMissingAssignment: http.StatusUnprocessableEntity,
}

// StatusFor returns the HTTP status used for err.
func StatusFor(err error) int {
	if errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}
	if status, ok := kindStatus[shared.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, "Internal Error", "")
		return
	}
	problem := ProblemDetail{
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		problem.Code = string(shared.KindInvalidInput)
		problem.Detail = describeValidation(verrs)
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		problem.Type = "urn:franchise-ops:problem:" + strings.ToLower(string(de.Kind))
		problem.Code = string(de.Kind)
		problem.Detail = de.Message
		problem.Items = de.Items
	} else if kind := shared.KindOf(err); kind != "" {
		problem.Code = string(kind)
	}
	JSON(w, status, problem)
}

func describeValidation(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
