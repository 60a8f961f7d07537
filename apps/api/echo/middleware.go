package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/access"
	"github.com/caffeinepub/diploma-smart-study-hub/services/ratelimit"
)

const contextDecisionKey = "accessDecision"

// middlewares shared by the APIs.
type middlewares struct {
	auth    echo.MiddlewareFunc // identity required
	admin   echo.MiddlewareFunc // admin role required
	gated   echo.MiddlewareFunc // subscription (or admin) required
	limited echo.MiddlewareFunc // rate limited per client
	jwt     echo.MiddlewareFunc // our own JWT required

	// decide returns the access decision of the caller, for identity-optional routes.
	decide func(ctx echo.Context) access.Decision
}

// SubscribePrompt is sent along with 402 responses.
type SubscribePrompt struct {
	Message  string `json:"message"`
	PlansURL string `json:"plansUrl"`
}

func newPaymentRequiredErr() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusPaymentRequired, echo.Map{
		"error": "subscription required",
		"subscribe": SubscribePrompt{
			Message:  "Subscribe to unlock this content.",
			PlansURL: "/v1/payments/plans",
		},
	})
}

func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if usr.IsAdmin() {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// decide resolves & caches the access decision of the caller for the request.
func decide(ctx echo.Context, checker *access.Checker, logger core.Logger, recorder DecisionRecorder) access.Decision {
	if d, ok := ctx.Get(contextDecisionKey).(access.Decision); ok {
		return d
	}
	d, errs := checker.Decide(ctx.Request().Context(), contextUserID(ctx))
	for _, err := range errs {
		logger.Warn(fmt.Sprintf("access check of %q failed locked: %v", contextUserID(ctx), err))
	}
	if d.Authenticated && recorder != nil {
		recorder.RecordDecision(d.HasAccess)
	}
	ctx.Set(contextDecisionKey, d)
	return d
}

// accessMiddleware gates the content: 401 without identity, 402 without access.
func accessMiddleware(checker *access.Checker, logger core.Logger, recorder DecisionRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextUser(ctx); err != nil {
				return err
			}
			if !decide(ctx, checker, logger, recorder).HasAccess {
				return newPaymentRequiredErr()
			}
			return next(ctx)
		}
	}
}

// rateLimitMiddleware limits the requests per client IP; limiter errors let the request through.
func rateLimitMiddleware(limiter ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil {
			return next
		}
		return func(ctx echo.Context) error {
			key := ctx.Path() + "|" + ctx.RealIP()
			ok, err := limiter.Allow(ctx.Request().Context(), key)
			if err != nil {
				ctx.Logger().Warn(errors.Wrap(err, "rate limiting"))
				return next(ctx)
			}
			if !ok {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
