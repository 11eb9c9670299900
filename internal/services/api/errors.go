package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/NordCoder/Puntos/internal/apperr"
	"github.com/NordCoder/Puntos/internal/domain/notification"
	"github.com/NordCoder/Puntos/internal/domain/promo"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/repository/loyaltyapi"
	"github.com/NordCoder/Puntos/internal/services/reminder"
)

// toAppErr classifies domain errors for the HTTP surface.
func toAppErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	var ue *loyaltyapi.UpstreamError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &ue):
		return apperr.Wrap(err, apperr.ErrUpstream, ue.Message)
	case errors.As(err, &verrs):
		fields := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		return apperr.WithFields(apperr.Wrap(err, apperr.ErrValidation, "invalid request"), fields)
	case errors.Is(err, reminder.ErrUnknownUser), errors.Is(err, notification.ErrNotFound):
		return apperr.Wrap(err, apperr.ErrNotFound, "")
	case errors.Is(err, domain.ErrNoContext):
		return apperr.Wrap(err, apperr.ErrNotFound, "no user context supplied or stored")
	case errors.Is(err, domain.ErrDestroyed):
		return apperr.Wrap(err, apperr.ErrConflict, "scheduler was destroyed")
	case errors.Is(err, domain.ErrPermissionDenied):
		return apperr.Wrap(err, apperr.ErrForbidden, "notification permission not granted")
	case errors.Is(err, domain.ErrChannelUnavailable):
		return apperr.Wrap(err, apperr.ErrUnavailable, "push channel unavailable")
	case errors.Is(err, domain.ErrNotificationDeliveryFailed):
		return apperr.Wrap(err, apperr.ErrUnavailable, "notification could not be shown")
	case errors.Is(err, promo.ErrInvalidField):
		return apperr.Wrap(err, apperr.ErrValidation, err.Error())
	case errors.Is(err, promo.ErrNotRecognized):
		return apperr.Wrap(err, apperr.ErrUnprocessable, "qr payload not recognized")
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(err, apperr.ErrUnavailable, "timeout")
	default:
		return apperr.Wrap(err, apperr.ErrInternal, "internal error")
	}
}

func badRequest(format string, args ...any) error {
	return apperr.Wrap(fmt.Errorf(format, args...), apperr.ErrBadRequest, fmt.Sprintf(format, args...))
}
