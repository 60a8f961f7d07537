package echoapi

import (
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
	bearerPrefix    = "Bearer "
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Username     string `json:"username,omitempty"`
	Email        string `json:"email,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"` // -> ADMIN PANEL
	Role         string `json:"role,omitempty"`
}

// authenticator identifies the callers, from our own JWTs or from the ID tokens of the identity provider.
type authenticator struct {
	conf      *core.Config
	users     user.ServiceInterface
	identity  core.IdentityVerifier
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config, users user.ServiceInterface, identity core.IdentityVerifier) *authenticator {
	return &authenticator{
		conf:     conf,
		users:    users,
		identity: identity,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (a *authenticator) userClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  "Students",
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsAdmin:      usr.IsAdmin(),
		Role:         usr.Role,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) authenticate(ctx echo.Context, uname, pwd string) (*Claims, error) {
	rctx := ctx.Request().Context()
	usr, err := a.users.GetByUsernameOrEmail(rctx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	usr, err = a.users.SetLastLogin(rctx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return a.userClaims(usr), nil
}

// identify sets the caller in the context when the request carries a bearer token.
// Requests without token go through as guests.
func (a *authenticator) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		header := ctx.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return next(ctx)
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			return middleware.ErrJWTMissing
		}
		raw := strings.TrimSpace(header[len(bearerPrefix):])

		usr, err := a.identifyJWT(ctx, raw)
		if err != nil && a.identity != nil {
			usr, err = a.identifyExternal(ctx, raw)
		}
		if err != nil {
			return err
		}
		if !usr.IsActive {
			return errAccountDeactivated
		}
		ctx.Set(contextUserKey, usr)
		return next(ctx)
	}
}

func (a *authenticator) identifyJWT(ctx echo.Context, raw string) (user.User, error) {
	token, err := jwt.ParseWithClaims(raw, new(Claims), func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != a.jwtConfig.SigningMethod {
			return nil, errors.Errorf("unexpected jwt signing method %v", t.Header["alg"])
		}
		return a.jwtConfig.SigningKey, nil
	})
	if err != nil || !token.Valid {
		return user.User{}, errInvalidToken
	}
	claims := token.Claims.(*Claims)

	usr, err := a.users.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errInvalidToken
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	return usr, nil
}

func (a *authenticator) identifyExternal(ctx echo.Context, raw string) (user.User, error) {
	rctx := ctx.Request().Context()
	id, err := a.identity.VerifyIDToken(rctx, raw)
	if err != nil {
		return user.User{}, err
	}
	usr, err := a.users.GetOrCreateExternal(rctx, id.UID, id.Email, id.Name)
	return usr, errors.Wrap(err, "getting external user")
}

// requireUser rejects the guests.
func (a *authenticator) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := getContextUser(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// contextUserID is empty for guests.
func contextUserID(ctx echo.Context) string {
	usr, _ := getContextUser(ctx)
	return usr.ID
}

func (a *authenticator) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := a.userClaims(usr, claims.OrigIssuedAt)
	token, err := a.generateToken(newClaims)
	return token, errors.Wrap(err, "generating token")
}
