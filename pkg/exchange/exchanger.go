// Package exchange turns a Nintendo session token into the derived gtoken
// and bullet token. Both attestation-backed stages are retried against the
// current provider and then fall back through the configured provider list.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/cryptox"
	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/ftoken"
	"github.com/aussiebroadwan/splatauth/pkg/nso"
	"github.com/aussiebroadwan/splatauth/pkg/retry"
	"github.com/aussiebroadwan/splatauth/pkg/slogx"
)

// Identity is the subset of *nso.Client the exchanger drives.
type Identity interface {
	ExchangeSessionToken(ctx context.Context, sessionToken string) (*nso.UserAccess, error)
	FetchUserProfile(ctx context.Context, accessToken string) (*nso.UserProfile, error)
	AccountLogin(ctx context.Context, p nso.AccountLoginParams) (*nso.WebAPICredential, error)
	GetWebServiceToken(ctx context.Context, p nso.WebServiceTokenParams) (string, error)
	MintBulletToken(ctx context.Context, webServiceToken string, profile *nso.UserProfile) (string, error)
	AppVersion(ctx context.Context) string
}

// Attester produces attestation blobs; *ftoken.Client implements it.
type Attester interface {
	Attest(ctx context.Context, providerURL string, p ftoken.Params) (*ftoken.Result, error)
}

// Grant is the outcome of MintGToken. Besides the gtoken it carries the
// identity context MintBulletToken needs, so a bullet token can be minted
// later without repeating the login.
type Grant struct {
	GToken      string
	ExpiresIn   int
	CoralUserID string
	NAID        string
	Profile     *nso.UserProfile
	// Provider is the attestation provider that produced the gtoken.
	Provider string
}

// Exchanger runs the credential exchange. It is safe for concurrent use.
type Exchanger struct {
	identity  Identity
	attester  Attester
	providers []string
	attempts  int
	now       func() time.Time
}

// Option configures an Exchanger.
type Option func(*Exchanger)

// WithRetries sets the number of extra attempts against one provider before
// falling back to the next. The default is 1.
func WithRetries(n int) Option {
	return func(e *Exchanger) {
		e.attempts = 1 + max(n, 0)
	}
}

// WithClock sets the clock used to check the session token's expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Exchanger) {
		e.now = now
	}
}

// New creates an Exchanger. providers is copied; it must not be empty.
func New(identity Identity, attester Attester, providers []string, opts ...Option) (*Exchanger, error) {
	if identity == nil || attester == nil {
		return nil, errx.Configuration("exchanger needs an identity client and an attester")
	}
	if len(providers) == 0 {
		return nil, errx.Configuration("no attestation providers configured")
	}

	e := &Exchanger{
		identity:  identity,
		attester:  attester,
		providers: append([]string(nil), providers...),
		attempts:  2,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Providers returns a copy of the provider list in fallback order.
func (e *Exchanger) Providers() []string {
	return append([]string(nil), e.providers...)
}

// MintGToken exchanges sessionToken for a user access token and profile,
// then attests the ID token and signs in to the platform. The returned
// credential is the gtoken.
func (e *Exchanger) MintGToken(ctx context.Context, sessionToken string) (*Grant, error) {
	log := slogx.FromContext(ctx)

	if sessionToken == "" {
		return nil, stageError(StageSessionToken, "", errx.Configuration("session token is required"))
	}
	if nso.SessionExpired(sessionToken, e.now()) {
		return nil, stageError(StageSessionToken, "", errx.Configuration("session token has expired, log in again"))
	}

	access, err := e.identity.ExchangeSessionToken(ctx, sessionToken)
	if err != nil {
		return nil, stageError(StageSessionToken, "", err)
	}

	profile, err := e.identity.FetchUserProfile(ctx, access.AccessToken)
	if err != nil {
		return nil, stageError(StageUserProfile, "", err)
	}

	appVersion := e.identity.AppVersion(ctx)

	grant, err := acrossProviders(ctx, e, func(ctx context.Context, provider string) (*Grant, error) {
		attestation, err := e.attester.Attest(ctx, provider, ftoken.Params{
			Token:      access.IDToken,
			Step:       ftoken.StepLogin,
			NAID:       profile.ID,
			AppVersion: appVersion,
		})
		if err != nil {
			return nil, stageError(StageLoginAttestation, provider, err)
		}

		credential, err := e.identity.AccountLogin(ctx, nso.AccountLoginParams{
			IDToken:     access.IDToken,
			Profile:     profile,
			Attestation: attestation,
		})
		if err != nil {
			return nil, stageError(StageAccountLogin, provider, err)
		}

		return &Grant{
			GToken:      credential.AccessToken,
			ExpiresIn:   credential.ExpiresIn,
			CoralUserID: credential.CoralUserID,
			NAID:        profile.ID,
			Profile:     profile,
			Provider:    provider,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("gtoken minted",
		slog.String("provider", grant.Provider),
		slog.String("gtoken_fp", cryptox.FingerprintToken(grant.GToken)),
	)
	return grant, nil
}

// MintBulletToken attests the gtoken of grant, exchanges it for the SplatNet
// web service token and asks SplatNet for a bullet token.
func (e *Exchanger) MintBulletToken(ctx context.Context, grant *Grant) (string, error) {
	log := slogx.FromContext(ctx)

	if grant == nil || grant.GToken == "" || grant.Profile == nil {
		return "", stageError(StageWebServiceAttestation, "", errx.Configuration("bullet token needs a gtoken grant"))
	}

	appVersion := e.identity.AppVersion(ctx)

	webServiceToken, err := acrossProviders(ctx, e, func(ctx context.Context, provider string) (string, error) {
		attestation, err := e.attester.Attest(ctx, provider, ftoken.Params{
			Token:       grant.GToken,
			Step:        ftoken.StepWebService,
			NAID:        grant.NAID,
			CoralUserID: grant.CoralUserID,
			AppVersion:  appVersion,
		})
		if err != nil {
			return "", stageError(StageWebServiceAttestation, provider, err)
		}

		token, err := e.identity.GetWebServiceToken(ctx, nso.WebServiceTokenParams{
			Credential:  grant.GToken,
			Attestation: attestation,
		})
		if err != nil {
			return "", stageError(StageWebServiceToken, provider, err)
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}

	bullet, err := e.identity.MintBulletToken(ctx, webServiceToken, grant.Profile)
	if err != nil {
		return "", stageError(StageBulletToken, "", err)
	}

	log.Info("bullet token minted", slog.String("bullet_fp", cryptox.FingerprintToken(bullet)))
	return bullet, nil
}

// acrossProviders runs fn against each provider in order. Each provider gets
// e.attempts tries; only retryable kinds move on to another try or another
// provider.
func acrossProviders[T any](
	ctx context.Context,
	e *Exchanger,
	fn func(ctx context.Context, provider string) (T, error),
) (T, error) {
	var zero T
	log := slogx.FromContext(ctx)

	var last *Error
	for i, provider := range e.providers {
		var failed *Error
		v, err := retry.Do(ctx, retry.Policy{
			Attempts: e.attempts,
			On:       []error{errx.ErrAttestation, errx.ErrIdentityProvider, errx.ErrMalformedResponse},
			OnFailure: func(attempt int, err error) {
				errors.As(err, &failed)
				log.Warn("exchange attempt failed",
					slog.String("provider", provider),
					slog.Int("attempt", attempt),
					slog.Any("error", err),
				)
			},
		}, func(ctx context.Context) (T, error) {
			return fn(ctx, provider)
		})
		if err == nil {
			return v, nil
		}

		var stageErr *Error
		if !errors.As(err, &stageErr) {
			// Context ended between attempts
			if failed == nil {
				return zero, stageError(StageSessionToken, provider, err)
			}
			return zero, stageError(failed.Stage, provider, err)
		}
		if !errx.IsRetryable(err) {
			return zero, stageErr
		}

		last = stageErr
		if i < len(e.providers)-1 {
			log.Warn("falling back to next attestation provider",
				slog.String("failed", provider),
				slog.String("next", e.providers[i+1]),
			)
		}
	}

	return zero, stageError(last.Stage, last.Provider, fmt.Errorf("%w: %w", ErrProvidersExhausted, last.Err))
}
