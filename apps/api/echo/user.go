package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

type userApi struct {
	svc      user.ServiceInterface
	auth     *authenticator
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, mw middlewares, auth *authenticator, svc user.ServiceInterface, validate *validator.Validate) {
	api := userApi{svc: svc, auth: auth, validate: validate}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login, mw.limited)

	// authed endpoints
	ug.POST("/token-refresh", api.refreshToken, mw.jwt, mw.auth)
	ug.GET("/me", api.me, mw.auth)
	ug.POST("/register", api.create, mw.auth, mw.admin)
	ug.GET("", api.query, mw.auth, mw.admin)
	ug.GET("/:id", api.retrieve, mw.auth, mw.admin)
	ug.PUT("/:id/role", api.assignRole, mw.auth, mw.admin)

	rg := g.Group("/roles")
	rg.GET("", api.queryRoles, mw.auth, mw.admin)
	rg.GET("/me", api.callerRole)
	rg.GET("/me/admin", api.isCallerAdmin)

	ag := g.Group("/admin/password", mw.auth)
	ag.GET("", api.isPasswordSet)
	ag.PUT("", api.savePassword, mw.admin)
	ag.POST("/authenticate", api.authenticateAdmin, mw.admin, mw.limited)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := api.auth.authenticate(ctx, data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.generateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) assignRole(ctx echo.Context) error {
	var data user.AssignRole
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRole")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	// an admin cannot demote themselves
	if ctx.Param("id") == contextUserID(ctx) && data.Role != user.RoleAdmin {
		return errHttpForbidden
	}
	usr, err := api.svc.AssignRole(ctx.Request().Context(), ctx.Param("id"), data.Role)
	if err != nil {
		return errors.Wrap(err, "assigning role")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) callerRole(ctx echo.Context) error {
	role, err := api.svc.Role(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "getting caller role")
	}
	return ctx.JSON(http.StatusOK, RoleResponse{Role: role})
}

func (api *userApi) isCallerAdmin(ctx echo.Context) error {
	isAdmin, err := api.svc.IsAdmin(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "checking caller role")
	}
	return ctx.JSON(http.StatusOK, AdminResponse{IsAdmin: isAdmin})
}

func (api *userApi) isPasswordSet(ctx echo.Context) error {
	isSet, err := api.svc.IsAdminPasswordSet(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "checking admin password")
	}
	return ctx.JSON(http.StatusOK, PasswordSetResponse{IsSet: isSet})
}

func (api *userApi) savePassword(ctx echo.Context) error {
	var data user.AdminPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdminPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.SaveAdminPassword(ctx.Request().Context(), data.Password); err != nil {
		return errors.Wrap(err, "saving admin password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Admin password saved."})
}

func (api *userApi) authenticateAdmin(ctx echo.Context) error {
	var data user.AdminPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdminPassword")
	}
	if data.Password == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: "this field is required"})
	}
	ok, err := api.svc.AuthenticateAdmin(ctx.Request().Context(), data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating admin")
	}
	return ctx.JSON(http.StatusOK, AuthenticatedResponse{Authenticated: ok})
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	RoleResponse struct {
		Role string `json:"role"`
	}

	AdminResponse struct {
		IsAdmin bool `json:"isAdmin"`
	}

	PasswordSetResponse struct {
		IsSet bool `json:"isSet"`
	}

	AuthenticatedResponse struct {
		Authenticated bool `json:"authenticated"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}
