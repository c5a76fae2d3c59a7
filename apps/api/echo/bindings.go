package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type (
	// validatable is implemented by the core request types.
	validatable interface {
		Validate(validate *validator.Validate) error
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	DataResponse struct {
		Success bool        `json:"success"`
		Message string      `json:"message,omitempty"`
		Data    interface{} `json:"data"`
	}

	LogoutRequest struct {
		AccessToken string `json:"accessToken"`
	}
)

// bindAndValidate binds the request into data and validates it.
func bindAndValidate(ctx echo.Context, data validatable, validate *validator.Validate) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrapf(err, "binding to %T", data)
	}
	return data.Validate(validate)
}

func success(message string, data interface{}) DataResponse {
	return DataResponse{Success: true, Message: message, Data: data}
}
