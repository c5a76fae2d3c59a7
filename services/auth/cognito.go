package authsvc

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
)

const cognitoTargetPrefix = "AWSCognitoIdentityProviderService."

// cognitoErrors maps Cognito `__type` error codes to identity errors.
var cognitoErrors = map[string]error{
	"UsernameExistsException":        identity.ErrUserExists,
	"UserNotFoundException":          identity.ErrUserNotFound,
	"UserNotConfirmedException":      identity.ErrNotConfirmed,
	"NotAuthorizedException":         identity.ErrInvalidCredentials,
	"CodeMismatchException":          identity.ErrCodeMismatch,
	"ExpiredCodeException":           identity.ErrCodeExpired,
	"InvalidPasswordException":       identity.ErrInvalidPassword,
	"LimitExceededException":         identity.ErrLimitExceeded,
	"TooManyRequestsException":       identity.ErrLimitExceeded,
	"TooManyFailedAttemptsException": identity.ErrLimitExceeded,
}

// CognitoProvider calls the Cognito user pool API.
type CognitoProvider struct {
	endpoint     string
	region       string
	userPoolID   string
	clientID     string
	clientSecret string
	accessKey    string
	secretKey    string
	client       *http.Client
}

var _ identity.Provider = (*CognitoProvider)(nil)

func NewCognitoProvider(conf core.AuthConfig, client *http.Client) *CognitoProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := conf.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", conf.Region)
	}
	return &CognitoProvider{
		endpoint:     endpoint,
		region:       conf.Region,
		userPoolID:   conf.UserPoolID,
		clientID:     conf.ClientID,
		clientSecret: conf.ClientSecret,
		accessKey:    conf.AccessKey,
		secretKey:    conf.SecretKey,
		client:       client,
	}
}

// secretHash is required when the app client has a secret.
func (p *CognitoProvider) secretHash(username string) string {
	mac := hmac.New(sha256.New, []byte(p.clientSecret))
	mac.Write([]byte(username + p.clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// clientInput adds the app client fields shared by the public operations.
func (p *CognitoProvider) clientInput(username string, in map[string]interface{}) map[string]interface{} {
	in["ClientId"] = p.clientID
	if p.clientSecret != "" {
		in["SecretHash"] = p.secretHash(username)
	}
	return in
}

type cognitoError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (e cognitoError) err(op string) error {
	code := e.Type
	if i := strings.LastIndex(code, "#"); i >= 0 {
		code = code[i+1:]
	}
	if mapped, ok := cognitoErrors[code]; ok {
		return mapped
	}
	return fmt.Errorf("cognito %s: %s: %s", op, code, e.Message)
}

func (p *CognitoProvider) call(ctx context.Context, op string, in interface{}, out interface{}, signed bool) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "encoding %s input", op)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "building %s request", op)
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", cognitoTargetPrefix+op)
	if signed {
		signV4(req, body, p.accessKey, p.secretKey, p.region, "cognito-idp", nowFunc().UTC())
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling cognito %s", op)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "reading %s response", op)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var cerr cognitoError
		if err = json.Unmarshal(data, &cerr); err != nil || cerr.Type == "" {
			return fmt.Errorf("cognito %s: status %d", op, resp.StatusCode)
		}
		return cerr.err(op)
	}
	if out != nil && len(data) > 0 {
		return errors.Wrapf(json.Unmarshal(data, out), "decoding %s response", op)
	}
	return nil
}

func (p *CognitoProvider) SignUp(ctx context.Context, in identity.SignUpInput) (identity.SignUpResult, error) {
	attrs := []map[string]string{{"Name": "email", "Value": in.Email}}
	if in.FullName != "" {
		attrs = append(attrs, map[string]string{"Name": "name", "Value": in.FullName})
	}
	if in.Phone != "" {
		attrs = append(attrs, map[string]string{"Name": "phone_number", "Value": in.Phone})
	}
	var out struct {
		UserSub       string
		UserConfirmed bool
	}
	err := p.call(ctx, "SignUp", p.clientInput(in.Email, map[string]interface{}{
		"Username":       in.Email,
		"Password":       in.Password,
		"UserAttributes": attrs,
	}), &out, false)
	if err != nil {
		return identity.SignUpResult{}, err
	}
	return identity.SignUpResult{Sub: out.UserSub, Confirmed: out.UserConfirmed}, nil
}

func (p *CognitoProvider) ConfirmSignUp(ctx context.Context, email, code string) error {
	return p.call(ctx, "ConfirmSignUp", p.clientInput(email, map[string]interface{}{
		"Username":         email,
		"ConfirmationCode": code,
	}), nil, false)
}

func (p *CognitoProvider) ResendConfirmationCode(ctx context.Context, email string) error {
	return p.call(ctx, "ResendConfirmationCode", p.clientInput(email, map[string]interface{}{
		"Username": email,
	}), nil, false)
}

func (p *CognitoProvider) Login(ctx context.Context, email, password string) (identity.Tokens, error) {
	params := map[string]string{"USERNAME": email, "PASSWORD": password}
	if p.clientSecret != "" {
		params["SECRET_HASH"] = p.secretHash(email)
	}
	var out struct {
		AuthenticationResult *struct {
			AccessToken  string
			IdToken      string
			RefreshToken string
			ExpiresIn    int
			TokenType    string
		}
		ChallengeName string
	}
	err := p.call(ctx, "InitiateAuth", map[string]interface{}{
		"AuthFlow":       "USER_PASSWORD_AUTH",
		"ClientId":       p.clientID,
		"AuthParameters": params,
	}, &out, false)
	if err != nil {
		return identity.Tokens{}, err
	}
	if out.AuthenticationResult == nil {
		return identity.Tokens{}, fmt.Errorf("cognito InitiateAuth: unsupported challenge %q", out.ChallengeName)
	}
	res := out.AuthenticationResult
	return identity.Tokens{
		AccessToken:  res.AccessToken,
		IDToken:      res.IdToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
		TokenType:    res.TokenType,
	}, nil
}

func (p *CognitoProvider) Logout(ctx context.Context, accessToken string) error {
	err := p.call(ctx, "GlobalSignOut", map[string]interface{}{"AccessToken": accessToken}, nil, false)
	if errors.Cause(err) == identity.ErrInvalidCredentials {
		return identity.ErrInvalidToken
	}
	return err
}

func (p *CognitoProvider) ForgotPassword(ctx context.Context, email string) error {
	return p.call(ctx, "ForgotPassword", p.clientInput(email, map[string]interface{}{
		"Username": email,
	}), nil, false)
}

func (p *CognitoProvider) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	return p.call(ctx, "ConfirmForgotPassword", p.clientInput(email, map[string]interface{}{
		"Username":         email,
		"ConfirmationCode": code,
		"Password":         newPassword,
	}), nil, false)
}

// AddUserToGroup is an admin operation: the request is signed with the configured AWS credentials.
func (p *CognitoProvider) AddUserToGroup(ctx context.Context, email, group string) error {
	return p.call(ctx, "AdminAddUserToGroup", map[string]interface{}{
		"UserPoolId": p.userPoolID,
		"Username":   email,
		"GroupName":  group,
	}, nil, true)
}
