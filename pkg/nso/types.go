package nso

import "github.com/aussiebroadwan/splatauth/pkg/ftoken"

// UserAccess is the short-lived Nintendo Account credential pair obtained
// from a session token.
type UserAccess struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// UserProfile is the subset of the Nintendo Account profile the platform
// endpoints need. The platform cross-checks these values.
type UserProfile struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Language string `json:"language"`
	Birthday string `json:"birthday"`
	Country  string `json:"country"`
}

// AccountLoginParams are the inputs of AccountLogin.
type AccountLoginParams struct {
	IDToken     string
	Profile     *UserProfile
	Attestation *ftoken.Result
}

// WebAPICredential is the result of Account/Login. AccessToken is the gtoken.
type WebAPICredential struct {
	AccessToken string
	ExpiresIn   int
	CoralUserID string
}

// WebServiceTokenParams are the inputs of GetWebServiceToken.
type WebServiceTokenParams struct {
	// Credential is the web API credential (gtoken) from AccountLogin.
	Credential  string
	Attestation *ftoken.Result
}
