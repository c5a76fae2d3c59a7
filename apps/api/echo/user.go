package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/user"
)

type (
	userApi struct {
		deps ServerDeps
		svc  *user.Service
	}

	// UserListItem is a user as listed to Admins.
	UserListItem struct {
		ID            string      `json:"id"`
		FullName      null.String `json:"full_name"`
		Email         string      `json:"email"`
		Phone         null.String `json:"phone"`
		RoleName      string      `json:"role_name"`
		EmailVerified bool        `json:"email_verified"`
		CreatedAt     time.Time   `json:"created_at"`
	}

	UserListResponse struct {
		Users      []UserListItem  `json:"users"`
		Pagination core.Pagination `json:"pagination"`
	}

	// UpdatedUser is the result of an Admin update.
	UpdatedUser struct {
		ID       string      `json:"id"`
		Email    string      `json:"email"`
		FullName null.String `json:"full_name"`
		Phone    null.String `json:"phone"`
		RoleID   int         `json:"role_id"`
		RoleName string      `json:"role_name"`
	}
)

func registerUserAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{deps: deps, svc: deps.UserSvc}

	ug := g.Group("/admin/users", auth, adminMiddleware())
	ug.GET("", api.query)
	ug.GET("/deleted", api.queryDeleted)
	ug.POST("", api.create)
	ug.PATCH("/:id", api.update)
	ug.DELETE("/:id", api.destroy)
	ug.PATCH("/:id/restore", api.restore)
}

func newUserListItem(usr user.User) UserListItem {
	return UserListItem{
		ID:            usr.ID,
		FullName:      usr.FullName,
		Email:         usr.Email,
		Phone:         usr.Phone,
		RoleName:      usr.RoleName,
		EmailVerified: usr.EmailVerified,
		CreatedAt:     usr.CreatedAt,
	}
}

// Handlers

func (api *userApi) list(ctx echo.Context, active bool) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.IsActive = active

	users, pagination, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	items := make([]UserListItem, len(users))
	for i, usr := range users {
		items[i] = newUserListItem(usr)
	}
	return ctx.JSON(http.StatusOK, success("Users retrieved", UserListResponse{Users: items, Pagination: pagination}))
}

func (api *userApi) query(ctx echo.Context) error {
	return api.list(ctx, true)
}

func (api *userApi) queryDeleted(ctx echo.Context) error {
	return api.list(ctx, false)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	res, err := api.svc.CreateByAdmin(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, success("User created", res))
}

func (api *userApi) update(ctx echo.Context) error {
	var data user.AdminUpdate
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	usr, err := api.svc.UpdateByAdmin(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, success("User updated", UpdatedUser{
		ID:       usr.ID,
		Email:    usr.Email,
		FullName: usr.FullName,
		Phone:    usr.Phone,
		RoleID:   usr.RoleID,
		RoleName: usr.RoleName,
	}))
}

func (api *userApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.JSON(http.StatusOK, success("User deleted", nil))
}

func (api *userApi) restore(ctx echo.Context) error {
	if err := api.svc.Restore(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "restoring user")
	}
	return ctx.JSON(http.StatusOK, success("User restored", nil))
}
