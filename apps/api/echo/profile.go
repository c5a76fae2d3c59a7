package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/learninghub/core/upload"
	"github.com/trezcool/learninghub/core/user"
)

const avatarURLExpiry = time.Hour

type (
	profileApi struct {
		deps ServerDeps
		svc  *user.Service
	}

	ProfileResponse struct {
		ID          string      `json:"id"`
		Email       string      `json:"email"`
		FullName    null.String `json:"fullName"`
		Phone       null.String `json:"phone"`
		Avatar      *string     `json:"avatar"`
		AvatarS3Key null.String `json:"avatarS3Key"`
		Bio         null.String `json:"bio"`
		RoleName    string      `json:"roleName"`
	}
)

// newProfileResponse presigns the avatar. A failed presign leaves Avatar null.
func newProfileResponse(ctx context.Context, usr user.User, uploads *upload.Service) ProfileResponse {
	resp := ProfileResponse{
		ID:          usr.ID,
		Email:       usr.Email,
		FullName:    usr.FullName,
		Phone:       usr.Phone,
		AvatarS3Key: usr.AvatarS3Key,
		Bio:         usr.Bio,
		RoleName:    usr.RoleName,
	}
	if usr.AvatarS3Key.Valid && usr.AvatarS3Key.String != "" && uploads != nil {
		if u, err := uploads.PresignedGetURL(ctx, usr.AvatarS3Key.String, avatarURLExpiry); err == nil {
			resp.Avatar = &u
		}
	}
	return resp
}

func registerProfileAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := profileApi{deps: deps, svc: deps.UserSvc}

	pg := g.Group("/my/profile", auth)
	pg.GET("", api.retrieve)
	pg.PATCH("", api.update)
}

// Handlers

func (api *profileApi) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	usr, err := api.svc.GetByID(ctx.Request().Context(), p.LocalUserID)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, newProfileResponse(ctx.Request().Context(), usr, api.deps.UploadSvc))
}

func (api *profileApi) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data user.ProfileUpdate
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	usr, err := api.svc.UpdateProfile(ctx.Request().Context(), p.LocalUserID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, newProfileResponse(ctx.Request().Context(), usr, api.deps.UploadSvc))
}
