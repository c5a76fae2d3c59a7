package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/course"
	"github.com/trezcool/learninghub/core/exam"
	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/upload"
	"github.com/trezcool/learninghub/core/user"
)

const (
	validationErrorMsg = "Validation error"
	internalErrorMsg   = "Internal server error"
	dbConnErrorMsg     = "Database connection error. Please try again later."
	dbErrorMsg         = "Database error. Please try again later."
)

var (
	errNoToken         = echo.NewHTTPError(http.StatusUnauthorized, "No token provided")
	errInvalidToken    = echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	errUserNotInDB     = echo.NewHTTPError(http.StatusUnauthorized, "User not found in local database")
	errUnauthorized    = echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	errAdminOnly       = echo.NewHTTPError(http.StatusForbidden, "Forbidden: Admin only")
	errStaffOnly       = echo.NewHTTPError(http.StatusForbidden, "Forbidden: Admin/Teacher only")
	errTooManyRequests = echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please try again later.")
	errHttpNotFound    = echo.NewHTTPError(http.StatusNotFound, "Not found")

	errNoFile       = echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	errFileTooLarge = echo.NewHTTPError(http.StatusBadRequest, "File too large. Maximum size is 500MB")
	errTooManyFiles = echo.NewHTTPError(http.StatusBadRequest, "Too many files. Maximum is 10 files")
)

// domainErrors maps the service sentinels to their HTTP status and message.
var domainErrors = map[error]*echo.HTTPError{
	user.ErrNotFound:         echo.NewHTTPError(http.StatusNotFound, "User not found"),
	user.ErrEmailExists:      echo.NewHTTPError(http.StatusBadRequest, "Email already exists"),
	user.ErrInvalidRole:      echo.NewHTTPError(http.StatusBadRequest, "Role must be member or teacher"),
	user.ErrAdminRoleLocked:  echo.NewHTTPError(http.StatusBadRequest, "Cannot change the role of an Admin"),
	user.ErrAdminUndeletable: echo.NewHTTPError(http.StatusBadRequest, "Cannot delete an Admin"),
	user.ErrInactive:         echo.NewHTTPError(http.StatusForbidden, "Account deactivated"),

	identity.ErrUserExists:         echo.NewHTTPError(http.StatusBadRequest, "Email already exists"),
	identity.ErrUserNotFound:       echo.NewHTTPError(http.StatusBadRequest, "User not found"),
	identity.ErrNotConfirmed:       echo.NewHTTPError(http.StatusForbidden, "Email not confirmed"),
	identity.ErrInvalidCredentials: echo.NewHTTPError(http.StatusUnauthorized, "Incorrect email or password"),
	identity.ErrCodeMismatch:       echo.NewHTTPError(http.StatusBadRequest, "Invalid verification code"),
	identity.ErrCodeExpired:        echo.NewHTTPError(http.StatusBadRequest, "Verification code expired"),
	identity.ErrInvalidPassword:    echo.NewHTTPError(http.StatusBadRequest, "Password does not meet the requirements"),
	identity.ErrLimitExceeded:      echo.NewHTTPError(http.StatusTooManyRequests, "Attempt limit exceeded, please try again later"),
	identity.ErrInvalidToken:       errInvalidToken,

	course.ErrNotFound:           echo.NewHTTPError(http.StatusNotFound, "Course not found"),
	course.ErrNotPublished:       echo.NewHTTPError(http.StatusNotFound, "Course not found or not published"),
	course.ErrLectureNotFound:    echo.NewHTTPError(http.StatusNotFound, "Lecture not found in this course"),
	course.ErrLectureNotInCourse: echo.NewHTTPError(http.StatusBadRequest, "Lecture does not belong to this course"),
	course.ErrSlugExists:         echo.NewHTTPError(http.StatusBadRequest, "Slug already exists"),
	course.ErrSlugTitleRequired:  echo.NewHTTPError(http.StatusBadRequest, "Slug and title are required"),
	course.ErrForbidden:          echo.NewHTTPError(http.StatusForbidden, "Forbidden: not the creator of this course"),
	course.ErrNotEnrolled:        echo.NewHTTPError(http.StatusForbidden, "User is not enrolled in this course"),
	course.ErrDeleteFailed:       echo.NewHTTPError(http.StatusInternalServerError, "Delete course failed"),
	course.ErrInvalidStatus:      echo.NewHTTPError(http.StatusBadRequest, "Status must be active or completed"),

	exam.ErrNotFound:           echo.NewHTTPError(http.StatusNotFound, "Exam not found"),
	exam.ErrQuestionNotFound:   echo.NewHTTPError(http.StatusNotFound, "Question not found"),
	exam.ErrSubmissionNotFound: echo.NewHTTPError(http.StatusNotFound, "Submission not found"),
	exam.ErrNotOwner:           echo.NewHTTPError(http.StatusForbidden, "Forbidden: not the owner of this submission"),
	exam.ErrAlreadyCompleted:   echo.NewHTTPError(http.StatusConflict, "Submission already completed"),

	upload.ErrMissingKey:    echo.NewHTTPError(http.StatusBadRequest, "S3 key is required"),
	upload.ErrInvalidExpiry: echo.NewHTTPError(http.StatusBadRequest, "expiresIn must be between 1 and 604800 seconds"),
}

// lookupDomainError only indexes domainErrors with comparable errors:
// slice-backed ones like validator.ValidationErrors would panic as map keys.
func lookupDomainError(err error) (*echo.HTTPError, bool) {
	if err == nil || !reflect.TypeOf(err).Comparable() {
		return nil, false
	}
	herr, ok := domainErrors[err]
	return herr, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		// already handled, e.g. by the metrics middleware
		if ctx.Response().Committed {
			return
		}

		var (
			code    int
			message interface{}
		)

		cause := errors.Cause(err)
		if herr, ok := lookupDomainError(cause); ok {
			cause = herr
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
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
			message = echo.Map{"message": validationErrorMsg, "errors": fldErrs}
		case *core.ValidationError:
			code = http.StatusBadRequest
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = echo.Map{"message": validationErrorMsg, "errors": fldErrs}
			} else {
				message = origErr.Error()
			}
		case *core.DatabaseError:
			code = http.StatusServiceUnavailable
			message = dbErrorMsg
			if origErr.Connection {
				message = dbConnErrorMsg
			}
			logger.Error(err.Error(), err, contextPrincipal(ctx))
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = internalErrorMsg
			logger.Error(internalErrorMsg, errors.Wrap(err, internalErrorMsg), contextPrincipal(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if code == http.StatusInternalServerError && ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"message": m}
		}

		// Send response
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
