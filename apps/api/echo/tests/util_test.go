package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core/user"
	"github.com/trezcool/learninghub/tests"
)

var codeRegex = regexp.MustCompile(`\b(\d{6})\b`)

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart request with one `file` part per name.
func newUploadRequest(t *testing.T, path, token string, names ...string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range names {
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("content of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func (app *testApp) serve(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) createUser(t *testing.T, email string, roleID int) user.User {
	return testutil.CreateUser(t, app.usrRepo, email, testPassword, roleID, true /* isActive */)
}

// getToken logs usr in with the identity provider and returns its access token.
func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	tokens, err := app.provider.Login(context.Background(), usr.Email, testPassword)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return tokens.AccessToken
}

// userWithToken creates a user of the given role and logs them in.
func (app *testApp) userWithToken(t *testing.T, email string, roleID int) (user.User, string) {
	usr := app.createUser(t, email, roleID)
	return usr, app.getToken(t, usr)
}

// lastCode is the verification code of the last email sent.
func (app *testApp) lastCode(t *testing.T) string {
	t.Helper()
	sent := app.mailer.Sent()
	require.NotEmpty(t, sent, "no email sent")
	match := codeRegex.FindStringSubmatch(sent[len(sent)-1].TextContent)
	require.Len(t, match, 2, "no code in email")
	return match[1]
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarchall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHttpTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.serve(newAuthRequest(tt.method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}

func message(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"message": msg})
	return data
}

var (
	errNoToken      = message("No token provided")
	errInvalidToken = message("Invalid or expired token")
	errAdminOnly    = message("Forbidden: Admin only")
	errStaffOnly    = message("Forbidden: Admin/Teacher only")
)
