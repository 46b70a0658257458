package cu

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// CognitiveServicesScope is the Entra ID scope accepted by the service.
	CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

	entraTokenURL = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
)

// TokenSourceProvider adapts an oauth2.TokenSource to operation.TokenProvider.
// Refreshes are serialized by oauth2.ReuseTokenSource, so one provider can be
// shared by concurrent submits and polls.
type TokenSourceProvider struct {
	src oauth2.TokenSource
}

func NewTokenSourceProvider(ts oauth2.TokenSource) *TokenSourceProvider {
	return &TokenSourceProvider{src: oauth2.ReuseTokenSource(nil, ts)}
}

func (p *TokenSourceProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := p.src.Token()
	if err != nil {
		return "", err
	}
	if !tok.Valid() {
		return "", errors.New("token source returned an invalid token")
	}
	return tok.AccessToken, nil
}

// NewClientCredentialsProvider fetches tokens for a service principal with
// the client-credentials grant.
func NewClientCredentialsProvider(ctx context.Context, tenantID, clientID, clientSecret string) (*TokenSourceProvider, error) {
	if tenantID == "" || clientID == "" || clientSecret == "" {
		return nil, errors.New("client credentials need tenant id, client id and secret")
	}
	return clientCredentials(ctx, fmt.Sprintf(entraTokenURL, tenantID), clientID, clientSecret), nil
}

func clientCredentials(ctx context.Context, tokenURL, clientID, clientSecret string) *TokenSourceProvider {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{CognitiveServicesScope},
	}
	return NewTokenSourceProvider(cfg.TokenSource(ctx))
}

// StaticToken always returns the same bearer token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("static token is empty")
	}
	return string(s), nil
}
