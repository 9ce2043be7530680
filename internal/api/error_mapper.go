package api

import (
	"errors"
	"net/http"

	"spot-matching/internal/account"
	"spot-matching/internal/engine"
	"spot-matching/internal/projection"
)

// MapErrorToHTTP maps errors to HTTP status codes and error responses
func MapErrorToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusOK, ErrorResponse{}
	}

	switch {
	case errors.Is(err, account.ErrInvalidAmount), errors.Is(err, projection.ErrInvalidArgument):
		return http.StatusBadRequest, ErrorResponse{
			Code:    string(engine.ErrorCodeInvalidArgument),
			Message: err.Error(),
		}
	case errors.Is(err, projection.ErrOrderNotFound):
		return http.StatusNotFound, ErrorResponse{
			Code:    string(engine.ErrorCodeOrderNotFound),
			Message: "order not found",
		}
	}

	return MapEngineErrorToHTTP(engine.ErrorCodeFor(err), err)
}

// MapEngineErrorToHTTP maps engine error codes to HTTP status codes and error responses
func MapEngineErrorToHTTP(errorCode engine.ErrorCode, err error) (int, ErrorResponse) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch errorCode {
	case engine.ErrorCodeNone:
		return http.StatusOK, ErrorResponse{}
	case engine.ErrorCodeInvalidArgument:
		status, msg = http.StatusBadRequest, "invalid argument"
	case engine.ErrorCodeUnknownPair:
		status, msg = http.StatusBadRequest, "unknown trading pair"
	case engine.ErrorCodeInsufficientBalance:
		status, msg = http.StatusBadRequest, "insufficient balance"
	case engine.ErrorCodeOrderNotFound:
		status, msg = http.StatusNotFound, "order not found"
	case engine.ErrorCodeOrderAlreadyTerminal:
		status, msg = http.StatusConflict, "order already filled or cancelled"
	case engine.ErrorCodeUnauthorized:
		status, msg = http.StatusForbidden, "unauthorized"
	case engine.ErrorCodeDuplicateRequest:
		status, msg = http.StatusConflict, "duplicate request with different payload"
	case engine.ErrorCodeLaneHalted, engine.ErrorCodeUnavailable:
		status, msg = http.StatusServiceUnavailable, "service unavailable"
	case engine.ErrorCodeInternalError:
	default:
		errorCode = engine.ErrorCodeInternalError
	}

	return status, ErrorResponse{
		Code:    string(errorCode),
		Message: getErrorMessage(err, msg),
	}
}

func getErrorMessage(err error, defaultMsg string) string {
	if err != nil {
		return err.Error()
	}
	return defaultMsg
}
