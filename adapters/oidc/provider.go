package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrStateMismatch = errors.New("state mismatch")
	ErrNonceMismatch = errors.New("nonce mismatch")
)

// Provider 包裝SSO供應商的OIDC探索結果與client憑證，
// 提供登入流程需要的授權URL產生與授權碼交換
type Provider struct {
	*oidc.Provider

	clientID     string
	clientSecret string
}

func NewProvider(issuerURL, clientID, clientSecret string) (*Provider, error) {
	const op = "NewProvider"
	provider, err := oidc.NewProvider(context.Background(), issuerURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to discover issuer, err=%w", op, err)
	}
	return &Provider{
		Provider:     provider,
		clientID:     clientID,
		clientSecret: clientSecret,
	}, nil
}

func (p *Provider) oauth2Config(redirectURL string, scopes []string) oauth2.Config {
	return oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     p.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
}

// AuthURL 產生帶state與nonce的授權請求URL
func (p *Provider) AuthURL(state, nonce, redirectURL string, scopes []string) string {
	config := p.oauth2Config(redirectURL, scopes)
	return config.AuthCodeURL(state, oidc.Nonce(nonce))
}

// ExchangeToken 是授權碼交換的完整結果
type ExchangeToken struct {
	OAuth2Token *oauth2.Token
	IDToken     IDToken
}

// Exchange 以授權碼換取token並驗證state、簽章與nonce。
// 任一驗證失敗都不返回token。
func (p *Provider) Exchange(ctx context.Context, verifier *ExchangeVerifier, code, state, redirectURL string) (*ExchangeToken, error) {
	const op = "Exchange"
	if !verifier.VerifyState(state) {
		return nil, ErrStateMismatch
	}
	config := p.oauth2Config(redirectURL, nil)
	oauth2Token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to exchange code, err=%w", op, err)
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("[%s] No id_token field in oauth2 token", op)
	}
	idToken, err := verifier.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to verify ID token, err=%w", op, err)
	}
	if !verifier.VerifyNonce(idToken.Nonce) {
		return nil, ErrNonceMismatch
	}
	token := &ExchangeToken{
		OAuth2Token: oauth2Token,
		IDToken:     IDToken{internal: idToken},
	}
	if err := idToken.Claims(&token.IDToken); err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse ID token claims, err=%w", op, err)
	}
	return token, nil
}

// NewExchangeVerifier 以本次登入請求的state與nonce建立驗證器
func (p *Provider) NewExchangeVerifier(reqState, reqNonce string) *ExchangeVerifier {
	return &ExchangeVerifier{
		idTokenVerifier: p.Verifier(&oidc.Config{ClientID: p.clientID}),
		wantState:       reqState,
		wantNonce:       reqNonce,
	}
}
