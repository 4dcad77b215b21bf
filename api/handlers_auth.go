package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pulsantiera/adapters/oidc"
	"pulsantiera/adapters/session"
)

const SESSION_KEY_SSO_ACCESS_TOKEN = "sso_access_token"

// GetAuthLogin 導向SSO登入頁
// (GET /auth/login)
func (impl *ServerImpl) GetAuthLogin(c *gin.Context) {
	const op = "GetAuthLogin"
	s, err := session.GetSession(c)
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to get cookie session, err=%w", op, err))
		return
	}
	state, err := generateID("st")
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Unable to generate state, err=%w", op, err))
		return
	}
	nonce, err := generateID("n")
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Unable to generate nonce, err=%w", op, err))
		return
	}
	redirectURL := c.Query("redirect_url")

	// 把交換驗證需要的參數放在server side session
	s.Set(SESSION_KEY_REQUEST_STATE, state)
	s.Set(SESSION_KEY_REQUEST_NONCE, nonce)
	s.Set(SESSION_KEY_REDIRECT_URL, redirectURL)
	s.Set(SESSION_KEY_URL_BEFORE_LOGIN, c.Query("from"))
	if err := s.Save(); err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to save cookie session, err=%w", op, err))
		return
	}

	c.Redirect(http.StatusFound, impl.oidcProvider.AuthURL(state, nonce, redirectURL, []string{"email", "openid", "profile"}))
}

// GetAuthCallback 向驗證伺服器交換token並簽發服務自己的身分token
// (GET /auth/callback)
func (impl *ServerImpl) GetAuthCallback(c *gin.Context) {
	const op = "GetAuthCallback"
	s, err := session.GetSession(c)
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to get cookie session, err=%w", op, err))
		return
	}

	verifier := impl.oidcProvider.NewExchangeVerifier(
		s.Get(SESSION_KEY_REQUEST_STATE),
		s.Get(SESSION_KEY_REQUEST_NONCE),
	)
	token, err := impl.oidcProvider.Exchange(
		c.Request.Context(),
		verifier,
		c.Query("code"),
		c.Query("state"),
		s.Get(SESSION_KEY_REDIRECT_URL),
	)
	if errors.Is(err, oidc.ErrStateMismatch) || errors.Is(err, oidc.ErrNonceMismatch) {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to exchange token, err=%w", op, err))
		return
	}

	username := token.IDToken.Name
	if username == "" {
		username = token.IDToken.ContactIdentity()
	}
	claims := JWT{
		Username: username,
		Email:    token.IDToken.ContactIdentity(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(impl.config.Auth.ExpireDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    impl.config.Auth.Issuer,
			Subject:   token.IDToken.Sub,
			ID:        uuid.NewString(),
			Audience:  []string{impl.config.Auth.Audience},
		},
	}
	signed, err := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, claims).SignedString(impl.config.Auth.PrivateKey)
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err))
		return
	}

	// 記下SSO的access token，登出時撤銷用
	urlBeforeLogin := s.Get(SESSION_KEY_URL_BEFORE_LOGIN)
	s.Delete(SESSION_KEY_REQUEST_STATE)
	s.Delete(SESSION_KEY_REQUEST_NONCE)
	s.Delete(SESSION_KEY_REDIRECT_URL)
	s.Delete(SESSION_KEY_URL_BEFORE_LOGIN)
	s.Set(SESSION_KEY_SSO_ACCESS_TOKEN, token.OAuth2Token.AccessToken)
	if err := s.Save(); err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to save cookie session, err=%w", op, err))
		return
	}

	c.SetCookie(COOKIE_KEY_ACCESS_TOKEN, signed, int(impl.config.Auth.ExpireDuration.Seconds()), "/", "", true, true)
	if urlBeforeLogin == "" {
		urlBeforeLogin = "/"
	}
	c.Redirect(http.StatusFound, urlBeforeLogin)
}

// GetAuthLogout 撤銷SSO token並清除身分cookie
// (GET /auth/logout)
func (impl *ServerImpl) GetAuthLogout(c *gin.Context) {
	const op = "GetAuthLogout"
	if s, err := session.GetSession(c); err == nil {
		if ssoToken := s.Get(SESSION_KEY_SSO_ACCESS_TOKEN); ssoToken != "" {
			// 撤銷失敗不影響登出，token到期自然失效
			if err := impl.ssoProvider.Revoke(ssoToken); err != nil {
				slog.Warn("Fail to revoke SSO token", slog.String("op", op), slog.Any("error", err))
			}
			s.Delete(SESSION_KEY_SSO_ACCESS_TOKEN)
			if err := s.Save(); err != nil {
				slog.Warn("Fail to save cookie session", slog.String("op", op), slog.Any("error", err))
			}
		}
	}
	c.SetCookie(COOKIE_KEY_ACCESS_TOKEN, "", -1, "/", "", true, true)
	c.Status(http.StatusOK)
}

func generateID(prefix string) (string, error) {
	const op = "generateID"
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate unique id, err=%w", op, err)
	}
	return prefix + "_" + base64.URLEncoding.EncodeToString(bytes), nil
}
