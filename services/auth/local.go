package authsvc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/user"
)

const (
	confirmCodeTTL = 24 * time.Hour
	resetCodeTTL   = time.Hour
	tokenTTL       = time.Hour
	minPasswordLen = 6
)

var (
	nowFunc  = time.Now // mockable
	codeFunc = randomCode
)

type (
	// CodeStore keeps short-lived verification codes.
	CodeStore interface {
		SaveCode(ctx context.Context, key, code string, ttl time.Duration) error
		// GetCode reports false when the code is missing or expired.
		GetCode(ctx context.Context, key string) (string, bool, error)
		DeleteCode(ctx context.Context, key string) error
	}

	// UserStore is the part of the user repository the local provider relies on.
	UserStore interface {
		GetUserByEmail(ctx context.Context, email string) (user.User, error)
	}

	// LocalProvider is an identity.Provider backed by the local users table.
	// Tokens are RS256 signed with an in-process key published as JWKS.
	LocalProvider struct {
		users    UserStore
		codes    CodeStore
		mailer   core.EmailService
		issuer   string
		clientID string
		key      *rsa.PrivateKey
		kid      string
	}
)

var _ identity.Provider = (*LocalProvider)(nil)

func NewLocalProvider(
	users UserStore, codes CodeStore, mailer core.EmailService, key *rsa.PrivateKey, issuer, clientID string,
) *LocalProvider {
	return &LocalProvider{
		users:    users,
		codes:    codes,
		mailer:   mailer,
		issuer:   issuer,
		clientID: clientID,
		key:      key,
		kid:      uuid.NewSHA1(uuid.NameSpaceURL, key.PublicKey.N.Bytes()).String(),
	}
}

// GenerateKey creates a signing key for NewLocalProvider.
func GenerateKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func confirmKey(email string) string { return "confirm:" + email }
func resetKey(email string) string   { return "reset:" + email }

func (p *LocalProvider) sendCode(ctx context.Context, key, email, subject, tmpl string, ttl time.Duration) error {
	code, err := codeFunc()
	if err != nil {
		return errors.Wrap(err, "generating code")
	}
	if err = p.codes.SaveCode(ctx, key, code, ttl); err != nil {
		return errors.Wrap(err, "saving code")
	}
	p.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{"Code": code, "ExpiresIn": ttl.String()},
	})
	return nil
}

func (p *LocalProvider) checkCode(ctx context.Context, key, code string) error {
	stored, ok, err := p.codes.GetCode(ctx, key)
	if err != nil {
		return errors.Wrap(err, "getting code")
	}
	if !ok {
		return identity.ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return identity.ErrCodeMismatch
	}
	return errors.Wrap(p.codes.DeleteCode(ctx, key), "deleting code")
}

func (p *LocalProvider) SignUp(ctx context.Context, in identity.SignUpInput) (identity.SignUpResult, error) {
	if _, err := p.users.GetUserByEmail(ctx, in.Email); err == nil {
		return identity.SignUpResult{}, identity.ErrUserExists
	} else if errors.Cause(err) != user.ErrNotFound {
		return identity.SignUpResult{}, errors.Wrap(err, "finding user by email")
	}
	if len(in.Password) < minPasswordLen {
		return identity.SignUpResult{}, identity.ErrInvalidPassword
	}
	if err := p.sendCode(ctx, confirmKey(in.Email), in.Email, "Confirm your email", "confirm_email", confirmCodeTTL); err != nil {
		return identity.SignUpResult{}, err
	}
	return identity.SignUpResult{Sub: uuid.NewString()}, nil
}

func (p *LocalProvider) ConfirmSignUp(ctx context.Context, email, code string) error {
	return p.checkCode(ctx, confirmKey(email), code)
}

func (p *LocalProvider) ResendConfirmationCode(ctx context.Context, email string) error {
	if _, err := p.users.GetUserByEmail(ctx, email); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return identity.ErrUserNotFound
		}
		return errors.Wrap(err, "finding user by email")
	}
	return p.sendCode(ctx, confirmKey(email), email, "Confirm your email", "confirm_email", confirmCodeTTL)
}

func (p *LocalProvider) Login(ctx context.Context, email, password string) (identity.Tokens, error) {
	usr, err := p.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return identity.Tokens{}, identity.ErrInvalidCredentials
		}
		return identity.Tokens{}, errors.Wrap(err, "finding user by email")
	}
	if len(usr.PasswordHash) == 0 || usr.CheckPassword(password) != nil {
		return identity.Tokens{}, identity.ErrInvalidCredentials
	}
	if !usr.EmailVerified {
		return identity.Tokens{}, identity.ErrNotConfirmed
	}

	access, err := p.sign(usr, "access")
	if err != nil {
		return identity.Tokens{}, err
	}
	id, err := p.sign(usr, "id")
	if err != nil {
		return identity.Tokens{}, err
	}
	return identity.Tokens{
		AccessToken: access,
		IDToken:     id,
		ExpiresIn:   int(tokenTTL.Seconds()),
		TokenType:   "Bearer",
	}, nil
}

func (p *LocalProvider) sign(usr user.User, use string) (string, error) {
	now := nowFunc()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   usr.CognitoSub,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		Email:    usr.Email,
		Groups:   []string{identity.GroupForRole(usr.RoleID)},
		TokenUse: use,
	}
	if use == "access" {
		claims.ClientID = p.clientID
		claims.Username = usr.Email
	} else if p.clientID != "" {
		claims.Audience = jwt.ClaimStrings{p.clientID}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(p.key)
	return signed, errors.Wrap(err, "signing token")
}

// Logout only checks the access token: local tokens are stateless.
func (p *LocalProvider) Logout(_ context.Context, accessToken string) error {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(*jwt.Token) (interface{}, error) {
		return &p.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithIssuer(p.issuer))
	if err != nil || claims.TokenUse != "access" {
		return identity.ErrInvalidToken
	}
	return nil
}

func (p *LocalProvider) ForgotPassword(ctx context.Context, email string) error {
	if _, err := p.users.GetUserByEmail(ctx, email); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return identity.ErrUserNotFound
		}
		return errors.Wrap(err, "finding user by email")
	}
	return p.sendCode(ctx, resetKey(email), email, "Reset your password", "reset_password", resetCodeTTL)
}

// ConfirmForgotPassword checks the reset code. The caller stores the new password hash.
func (p *LocalProvider) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return identity.ErrInvalidPassword
	}
	return p.checkCode(ctx, resetKey(email), code)
}

// AddUserToGroup is a no-op: local roles live in users.role_id.
func (p *LocalProvider) AddUserToGroup(context.Context, string, string) error {
	return nil
}

// JWKSHandler serves the public signing key.
func (p *LocalProvider) JWKSHandler() http.Handler {
	body, _ := json.Marshal(jwkSet{Keys: []jwk{publicJWK(p.kid, &p.key.PublicKey)}})
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(body)
	})
}
