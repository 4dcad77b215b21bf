package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ExchangeVerifier 驗證單次授權碼交換的三個要素：
// ID token簽章、state、nonce
type ExchangeVerifier struct {
	idTokenVerifier *oidc.IDTokenVerifier
	wantState       string
	wantNonce       string
}

func (v *ExchangeVerifier) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	const op = "VerifyIDToken"
	idToken, err := v.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	return idToken, nil
}

func (v *ExchangeVerifier) VerifyState(state string) bool {
	return state == v.wantState
}

func (v *ExchangeVerifier) VerifyNonce(nonce string) bool {
	return nonce == v.wantNonce
}
