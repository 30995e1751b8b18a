package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// providerTokenSource adapts an AccessTokenProvider to oauth2.TokenSource
type providerTokenSource struct {
	ctx      context.Context
	provider AccessTokenProvider
}

// TokenSource returns an oauth2.TokenSource that asks the provider for a new
// token only once the previous one has expired
func TokenSource(ctx context.Context, provider AccessTokenProvider) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &providerTokenSource{ctx: ctx, provider: provider})
}

func (s *providerTokenSource) Token() (*oauth2.Token, error) {
	if tp, ok := s.provider.(TokenProvider); ok {
		result, err := tp.Authorize(s.ctx)
		if err != nil {
			return nil, err
		}
		return OAuth2Token(result, time.Now()), nil
	}

	accessToken, err := s.provider.ProvideAccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
}

// OAuth2Token converts a TokenResult issued at issuedAt
func OAuth2Token(result *TokenResult, issuedAt time.Time) *oauth2.Token {
	tokenType := result.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	token := &oauth2.Token{
		AccessToken:  result.AccessToken,
		TokenType:    tokenType,
		RefreshToken: result.RefreshToken,
	}
	if result.ExpiresIn > 0 {
		token.Expiry = issuedAt.Add(time.Duration(result.ExpiresIn) * time.Second)
	}
	if result.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{"id_token": result.IDToken})
	}
	return token
}
