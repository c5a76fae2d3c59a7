package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/services/ratelimit"
)

type (
	registerData struct {
		Message string `json:"message"`
		Data    struct {
			UserID        string `json:"userId"`
			Email         string `json:"email"`
			RoleName      string `json:"roleName"`
			UserConfirmed bool   `json:"userConfirmed"`
		} `json:"data"`
	}

	loginData struct {
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			IDToken     string `json:"idToken"`
			TokenType   string `json:"tokenType"`
			User        *struct {
				Email    string `json:"email"`
				RoleName string `json:"role_name"`
			} `json:"user"`
		} `json:"data"`
	}
)

func newUserPayload(email, role string) map[string]string {
	return map[string]string{
		"email":    email,
		"password": testPassword,
		"fullName": "New Learner",
		"phone":    "+250788000000",
		"role":     role,
	}
}

func TestRegister(t *testing.T) {
	app := setup(t)
	app.createUser(t, "taken@example.com", identity.RoleMember)

	t.Run("created", func(t *testing.T) {
		rec := app.serve(newRequest(http.MethodPost, "/api/auth/register", marchallObj(t, newUserPayload(" New@Example.com ", "Teacher"))))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp registerData
		unmarchall(t, rec, &resp)
		assert.Equal(t, "User registered successfully", resp.Message)
		assert.NotEmpty(t, resp.Data.UserID)
		assert.Equal(t, "new@example.com", resp.Data.Email)
		assert.Equal(t, "Teacher", resp.Data.RoleName)
		assert.False(t, resp.Data.UserConfirmed)

		// a confirmation code was sent
		sent := app.mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "new@example.com", sent[0].To[0].Address)
	})

	runHttpTests(t, app, []httpTest{
		{
			name:     "duplicate email",
			method:   http.MethodPost,
			path:     "/api/auth/register",
			body:     marchallObj(t, newUserPayload("taken@example.com", "member")),
			wantCode: http.StatusBadRequest,
			wantData: message("Email already exists"),
		},
		{
			name:     "admin role",
			method:   http.MethodPost,
			path:     "/api/auth/register",
			body:     marchallObj(t, newUserPayload("admin@example.com", "admin")),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]interface{}{
				"message": "Validation error",
				"errors":  map[string]string{"role": "role must be member or teacher"},
			}),
		},
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/api/auth/register",
			body:     []byte(`{"email": "someone@example.com", "password": "Pass1234!"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]interface{}{
				"message": "Validation error",
				"errors": map[string]string{
					"fullName": "this field is required",
					"phone":    "this field is required",
					"role":     "this field is required",
				},
			}),
		},
	})
}

func TestLogin(t *testing.T) {
	app := setup(t)
	payload := newUserPayload("learner@example.com", "member")

	rec := app.serve(newRequest(http.MethodPost, "/api/auth/register", marchallObj(t, payload)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	creds := marchallObj(t, map[string]string{"email": payload["email"], "password": payload["password"]})

	runHttpTests(t, app, []httpTest{
		{
			name:     "not confirmed",
			method:   http.MethodPost,
			path:     "/api/auth/login",
			body:     creds,
			wantCode: http.StatusForbidden,
			wantData: message("Email not confirmed"),
		},
		{
			name:     "wrong code",
			method:   http.MethodPost,
			path:     "/api/auth/confirm-email",
			body:     marchallObj(t, map[string]string{"email": payload["email"], "code": "000000x"}),
			wantCode: http.StatusBadRequest,
			wantData: message("Invalid verification code"),
		},
		{
			name:     "confirmed",
			method:   http.MethodPost,
			path:     "/api/auth/confirm-email",
			body:     marchallObj(t, map[string]string{"email": payload["email"], "code": app.lastCode(t)}),
			wantCode: http.StatusOK,
			wantData: message("Email confirmed successfully"),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/api/auth/login",
			body:     marchallObj(t, map[string]string{"email": payload["email"], "password": "wrong-password"}),
			wantCode: http.StatusUnauthorized,
			wantData: message("Incorrect email or password"),
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/api/auth/login",
			body:     marchallObj(t, map[string]string{"email": "nobody@example.com", "password": testPassword}),
			wantCode: http.StatusUnauthorized,
			wantData: message("Incorrect email or password"),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := app.serve(newRequest(http.MethodPost, "/api/auth/login", creds))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp loginData
		unmarchall(t, rec, &resp)
		assert.Equal(t, "Login successful", resp.Message)
		assert.NotEmpty(t, resp.Data.AccessToken)
		assert.NotEmpty(t, resp.Data.IDToken)
		assert.Equal(t, "Bearer", resp.Data.TokenType)
		require.NotNil(t, resp.Data.User)
		assert.Equal(t, payload["email"], resp.Data.User.Email)
		assert.Equal(t, "Member", resp.Data.User.RoleName)

		// the issued token authenticates
		rec = app.serve(newAuthRequest(http.MethodGet, "/api/auth/me", resp.Data.AccessToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var me struct {
			Success bool `json:"success"`
			Data    struct {
				User    identity.Principal `json:"user"`
				Profile struct {
					Email    string  `json:"email"`
					FullName string  `json:"fullName"`
					Avatar   *string `json:"avatar"`
					RoleName string  `json:"roleName"`
				} `json:"profile"`
			} `json:"data"`
		}
		unmarchall(t, rec, &me)
		assert.True(t, me.Success)
		assert.Equal(t, payload["email"], me.Data.User.Email)
		assert.Equal(t, identity.RoleMember, me.Data.User.RoleID)
		assert.Equal(t, []string{identity.GroupMember}, me.Data.User.Groups)
		assert.Equal(t, "New Learner", me.Data.Profile.FullName)
		assert.Equal(t, "Member", me.Data.Profile.RoleName)
		assert.Nil(t, me.Data.Profile.Avatar)
	})
}

func TestAuthentication(t *testing.T) {
	app := setup(t)
	_, token := app.userWithToken(t, "member@example.com", identity.RoleMember)
	gone, goneToken := app.userWithToken(t, "gone@example.com", identity.RoleMember)
	require.NoError(t, app.usrRepo.SetUserActive(context.Background(), gone.ID, false))

	runHttpTests(t, app, []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/api/auth/me",
			wantCode: http.StatusUnauthorized,
			wantData: errNoToken,
		},
		{
			name:     "invalid token",
			method:   http.MethodGet,
			path:     "/api/auth/me",
			token:    "not.a.jwt",
			wantCode: http.StatusUnauthorized,
			wantData: errInvalidToken,
		},
		{
			name:     "deactivated user",
			method:   http.MethodGet,
			path:     "/api/auth/me",
			token:    goneToken,
			wantCode: http.StatusUnauthorized,
			wantData: message("User not found in local database"),
		},
		{
			name:     "debug token outside debug mode",
			method:   http.MethodGet,
			path:     "/api/auth/debug-token",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: message("Not found"),
		},
		{
			name:     "authenticated",
			method:   http.MethodGet,
			path:     "/api/auth/me",
			token:    token,
			wantCode: http.StatusOK,
		},
	})
}

func TestLogout(t *testing.T) {
	app := setup(t)
	_, token := app.userWithToken(t, "member@example.com", identity.RoleMember)

	runHttpTests(t, app, []httpTest{
		{
			name:     "bearer token",
			method:   http.MethodPost,
			path:     "/api/auth/logout",
			token:    token,
			wantCode: http.StatusOK,
			wantData: message("Logged out successfully"),
		},
		{
			name:     "body token",
			method:   http.MethodPost,
			path:     "/api/auth/logout",
			body:     marchallObj(t, map[string]string{"accessToken": token}),
			wantCode: http.StatusOK,
			wantData: message("Logged out successfully"),
		},
		{
			name:     "no token",
			method:   http.MethodPost,
			path:     "/api/auth/logout",
			wantCode: http.StatusUnauthorized,
			wantData: errNoToken,
		},
		{
			name:     "bad token",
			method:   http.MethodPost,
			path:     "/api/auth/logout",
			body:     marchallObj(t, map[string]string{"accessToken": "garbage"}),
			wantCode: http.StatusUnauthorized,
			wantData: errInvalidToken,
		},
	})
}

func TestPasswordReset(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, "forgetful@example.com", identity.RoleMember)
	forgotMsg := message("If the email address supplied is associated with an account on this system, " +
		"an email will arrive in your inbox shortly with a code to reset your password.")

	runHttpTests(t, app, []httpTest{
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/api/auth/forgot-password",
			body:     marchallObj(t, map[string]string{"email": "nobody@example.com"}),
			wantCode: http.StatusOK,
			wantData: forgotMsg,
		},
		{
			name:     "known email",
			method:   http.MethodPost,
			path:     "/api/auth/forgot-password",
			body:     marchallObj(t, map[string]string{"email": usr.Email}),
			wantCode: http.StatusOK,
			wantData: forgotMsg,
		},
	})
	require.Len(t, app.mailer.Sent(), 1)

	newPwd := "N3w-Passw0rd"
	runHttpTests(t, app, []httpTest{
		{
			name:     "reset",
			method:   http.MethodPost,
			path:     "/api/auth/reset-password",
			body:     marchallObj(t, map[string]string{"email": usr.Email, "code": app.lastCode(t), "newPassword": newPwd}),
			wantCode: http.StatusOK,
			wantData: message("Password has been reset with the new password."),
		},
		{
			name:     "old password",
			method:   http.MethodPost,
			path:     "/api/auth/login",
			body:     marchallObj(t, map[string]string{"email": usr.Email, "password": testPassword}),
			wantCode: http.StatusUnauthorized,
			wantData: message("Incorrect email or password"),
		},
		{
			name:     "new password",
			method:   http.MethodPost,
			path:     "/api/auth/login",
			body:     marchallObj(t, map[string]string{"email": usr.Email, "password": newPwd}),
			wantCode: http.StatusOK,
		},
	})
}

func TestAuthRateLimit(t *testing.T) {
	app := setup(t, withLimiter(ratelimit.NewMemoryLimiter(2, time.Minute)))
	body := marchallObj(t, map[string]string{"email": "nobody@example.com", "password": testPassword})

	for i := 0; i < 2; i++ {
		rec := app.serve(newRequest(http.MethodPost, "/api/auth/login", body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	runHttpTests(t, app, []httpTest{
		{
			name:     "limited",
			method:   http.MethodPost,
			path:     "/api/auth/login",
			body:     body,
			wantCode: http.StatusTooManyRequests,
			wantData: message("Too many requests, please try again later."),
		},
		{
			name:     "other routes unaffected",
			method:   http.MethodGet,
			path:     "/api/courses",
			wantCode: http.StatusOK,
		},
	})
}
