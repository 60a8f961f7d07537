package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errInvalidToken         = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests      = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")

	// bad requests: domain errors caused by the caller
	badRequestErrs = []error{
		payment.ErrStripeNotConfigured,
		payment.ErrRazorpayNotConfigured,
		payment.ErrInvalidSignature,
		payment.ErrUnknownPlan,
		payment.ErrStrategyNotSupported,
		user.ErrInvalidRole,
		withdrawal.ErrAmountTooLow,
		withdrawal.ErrInvalidPhone,
		withdrawal.ErrUnknownStatus,
		core.ErrFileTooLarge,
		core.ErrUnsupportedFileType,
	}
	conflictErrs = []error{
		payment.ErrStaleIntent,
		payment.ErrInvalidTransition,
	}
)

func isOneOf(err error, errs []error) bool {
	for _, e := range errs {
		if err == e {
			return true
		}
	}
	return false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.NotFoundError:
			code = http.StatusNotFound
			message = origErr.Error()
		default:
			switch {
			case cause == core.ErrInvalidIDToken:
				code = http.StatusUnauthorized
				message = cause.Error()
			case isOneOf(cause, badRequestErrs):
				code = http.StatusBadRequest
				message = cause.Error()
			case isOneOf(cause, conflictErrs):
				code = http.StatusConflict
				message = err.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				usr, _ := getContextUser(ctx)
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
