package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core/user"
	"github.com/trezcool/learninghub/services/metrics"
)

const forgotPasswordMsg = "If the email address supplied is associated with an account on this system, " +
	"an email will arrive in your inbox shortly with a code to reset your password."

type accountApi struct {
	deps    ServerDeps
	svc     *user.Service
	metrics *metrics.Metrics
}

func registerAuthAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := accountApi{deps: deps, svc: deps.UserSvc, metrics: deps.Metrics}

	ag := g.Group("/auth", rateLimitMiddleware(deps.Limiter, "auth"))

	// un-authed endpoints
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout)
	ag.POST("/confirm-email", api.confirmEmail)
	ag.POST("/resend-confirm-code", api.resendConfirmCode)
	ag.POST("/forgot-password", api.forgotPassword)
	ag.POST("/reset-password", api.resetPassword)

	// authed endpoints
	ag.GET("/me", api.me, auth)
	ag.GET("/debug-token", api.debugToken, auth)
}

func (api *accountApi) record(event string, err error) {
	if api.metrics != nil {
		api.metrics.AuthEvent(event, err)
	}
}

// Handlers

func (api *accountApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	res, err := api.svc.Register(ctx.Request().Context(), data)
	api.record("register", err)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "User registered successfully", "data": res})
}

func (api *accountApi) login(ctx echo.Context) error {
	var data user.Credentials
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	res, err := api.svc.Login(ctx.Request().Context(), data)
	api.record("login", err)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Login successful", "data": res})
}

// logout signs out the access token of the body, or the bearer token when the body has none.
func (api *accountApi) logout(ctx echo.Context) error {
	var data LogoutRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LogoutRequest")
	}
	if data.AccessToken == "" {
		token, ok := bearerToken(ctx)
		if !ok {
			return errNoToken
		}
		data.AccessToken = token
	}

	err := api.svc.Logout(ctx.Request().Context(), data.AccessToken)
	api.record("logout", err)
	if err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

func (api *accountApi) confirmEmail(ctx echo.Context) error {
	var data user.EmailCode
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	err := api.svc.ConfirmEmail(ctx.Request().Context(), data)
	api.record("confirm_email", err)
	if err != nil {
		return errors.Wrap(err, "confirming email")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Email confirmed successfully"})
}

func (api *accountApi) resendConfirmCode(ctx echo.Context) error {
	var data user.EmailOnly
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}
	if err := api.svc.ResendConfirmationCode(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "resending confirmation code")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Confirmation code resent"})
}

func (api *accountApi) forgotPassword(ctx echo.Context) error {
	var data user.EmailOnly
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}
	if err := api.svc.ForgotPassword(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: forgotPasswordMsg})
}

func (api *accountApi) resetPassword(ctx echo.Context) error {
	var data user.PasswordReset
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	err := api.svc.ResetPassword(ctx.Request().Context(), data)
	api.record("reset_password", err)
	if err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Password has been reset with the new password."})
}

func (api *accountApi) me(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	usr, err := api.svc.GetByID(ctx.Request().Context(), p.LocalUserID)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, success("", echo.Map{
		"user":    p,
		"profile": newProfileResponse(ctx.Request().Context(), usr, api.deps.UploadSvc),
	}))
}

// debugToken echoes the verified claims. Not found outside debug mode.
func (api *accountApi) debugToken(ctx echo.Context) error {
	if !api.deps.Conf.Debug {
		return errHttpNotFound
	}
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	return ctx.JSON(http.StatusOK, success("", echo.Map{"principal": p, "claims": ctx.Get(contextClaimsKey)}))
}
