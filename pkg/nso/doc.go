// Package nso is a client for the Nintendo Switch Online login flow and the
// platform endpoints that turn a session token into SplatNet 3 credentials.
//
// # Overview
//
// A login starts with GenerateLoginURL, which prepares a fresh PKCE
// LoginState and returns the authorize URL to open in a browser. After
// signing in, the browser shows a "Select this account" link with an
// npf71b963c1b7b6d119:// redirect URI; ExtractSessionTokenCode pulls the code
// out of it and ExchangeCodeForSessionToken turns it into the long-lived
// session token.
//
//	client := nso.NewClient()
//	login, err := client.GenerateLoginURL(ctx, "")
//	// ... user opens login.URL and pastes back the redirect URI ...
//	code, err := nso.ExtractSessionTokenCode(redirectURI)
//	sessionToken, err := client.ExchangeCodeForSessionToken(ctx, code, login.State.Verifier)
//
// # Platform credentials
//
// ExchangeSessionToken, FetchUserProfile, AccountLogin, GetWebServiceToken
// and MintBulletToken are the individual protocol steps. They are
// orchestrated, together with the f-token attestation calls, by package
// exchange; most callers never use them directly.
//
// # Versions
//
// Nintendo rejects clients that report an outdated app or web view version.
// AppVersion and WebViewVersion fetch the current values once per Client and
// fall back to FallbackAppVersion and FallbackWebViewVersion when the lookup
// fails.
package nso
