package oidc

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ExtendedProvider 在標準OIDC探索之外讀取撤銷端點，
// 讓登出時可以一併撤銷SSO access token
type ExtendedProvider struct {
	*Provider

	// 探索文件中的撤銷端點；供應商未公開時為空字串
	revocationEndpoint string
}

func NewExtendedProvider(issuerURL, clientID, clientSecret string) (*ExtendedProvider, error) {
	const op = "NewExtendedProvider"
	provider, err := NewProvider(issuerURL, clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("[%s] Fail to read discovery metadata, err=%w", op, err)
	}
	return &ExtendedProvider{
		Provider:           provider,
		revocationEndpoint: extra.RevocationEndpoint,
	}, nil
}

// Revoke 向供應商撤銷token。供應商未公開撤銷端點時無操作。
func (p *ExtendedProvider) Revoke(token string) error {
	const op = "Revoke"
	if p.revocationEndpoint == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)
	req, err := http.NewRequest(http.MethodPost, p.revocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("[%s] Fail to create revocation request, err=%w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("[%s] Fail to send revocation request, err=%w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("[%s] Revocation failed with status code=%d", op, resp.StatusCode)
	}
	return nil
}
