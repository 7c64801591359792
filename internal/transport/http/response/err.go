package response

import (
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/real-time-ressys/services/event-bus-service/internal/domain"
)

func Err(w http.ResponseWriter, r *http.Request, err error) {
	requestID := RequestIDFromRequest(r)

	if err == nil {
		Fail(w, http.StatusInternalServerError, "internal_error", "unknown error", nil, requestID)
		return
	}

	var ae *domain.AppError
	if errors.As(err, &ae) {
		Fail(w, statusFromCode(ae.Code), string(ae.Code), ae.Message, ae.Meta, requestID)
		return
	}

	// keep details in logs only
	zlog.Error().Err(err).Msg("unhandled error")
	Fail(w, http.StatusInternalServerError, "internal_error", "internal error", nil, requestID)
}

func statusFromCode(code domain.ErrCode) int {
	switch code {
	case domain.CodeValidation, domain.CodeUnknownEventType, domain.CodeBindingFailed:
		return http.StatusBadRequest
	case domain.CodeSubscriptionNotFound:
		return http.StatusNotFound
	case domain.CodeNotConnected:
		return http.StatusServiceUnavailable
	case domain.CodePublishFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
