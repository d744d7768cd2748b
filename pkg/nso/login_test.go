package nso_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/aussiebroadwan/splatauth/pkg/errx"
	"github.com/aussiebroadwan/splatauth/pkg/nso"
	"github.com/stretchr/testify/require"
)

func TestNewLoginState(t *testing.T) {
	t.Parallel()

	seenStates := make(map[string]bool)
	seenVerifiers := make(map[string]bool)

	for range 500 {
		state, err := nso.NewLoginState()
		require.NoError(t, err)

		require.Len(t, state.State, 48)
		require.Len(t, state.Verifier, 43)
		require.NotContains(t, state.Verifier, "=")
		require.Regexp(t, `^[A-Za-z0-9_-]+$`, state.State)
		require.Regexp(t, `^[A-Za-z0-9_-]+$`, state.Verifier)
		require.Equal(t, nso.Challenge(state.Verifier), state.Challenge)

		require.False(t, seenStates[state.State], "state reused")
		require.False(t, seenVerifiers[state.Verifier], "verifier reused")
		seenStates[state.State] = true
		seenVerifiers[state.Verifier] = true
	}
}

func TestChallengeReferenceVector(t *testing.T) {
	t.Parallel()

	// Verifier is base64url of the bytes 0x00..0x1f
	require.Equal(t,
		"6oZqdX5MOLq_qBJ8vppAnT4fk6AP8UiP9zX8-Rev_9A",
		nso.Challenge("AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8"),
	)
	require.Len(t, nso.Challenge("anything"), 43)
}

func TestExtractSessionTokenCode(t *testing.T) {
	t.Parallel()

	t.Run("well formed", func(t *testing.T) {
		t.Parallel()

		code, err := nso.ExtractSessionTokenCode(
			"npf71b963c1b7b6d119://auth#state=X&session_token_code=ABC123&session_state=zzz",
		)
		require.NoError(t, err)
		require.Equal(t, "ABC123", code)
	})

	t.Run("code is last component", func(t *testing.T) {
		t.Parallel()

		code, err := nso.ExtractSessionTokenCode("npf71b963c1b7b6d119://auth#state=X&session_token_code=eyJhbGc.abc-_")
		require.NoError(t, err)
		require.Equal(t, "eyJhbGc.abc-_", code)
	})

	malformed := map[string]string{
		"no delimiter":         "npf71b963c1b7b6d119://auth#state=X",
		"wrong second field":   "npf71b963c1b7b6d119://auth#state=X&session_state=abc",
		"empty code":           "npf71b963c1b7b6d119://auth#state=X&session_token_code=&session_state=abc",
		"empty string":         "",
		"code in third field":  "npf71b963c1b7b6d119://auth#a=1&b=2&session_token_code=ABC",
		"prefix without equal": "npf71b963c1b7b6d119://auth#state=X&session_token_codeABC",
	}
	for name, uri := range malformed {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			code, err := nso.ExtractSessionTokenCode(uri)
			require.ErrorIs(t, err, errx.ErrMalformedResponse)
			require.Empty(t, code)
		})
	}
}

func TestGenerateLoginURL(t *testing.T) {
	t.Parallel()

	type authorizeCall struct {
		query     url.Values
		userAgent string
	}
	calls := make(chan authorizeCall, 2)

	mux := http.NewServeMux()
	mux.HandleFunc("/connect/1.0.0/authorize", func(w http.ResponseWriter, r *http.Request) {
		calls <- authorizeCall{query: r.URL.Query(), userAgent: r.UserAgent()}
		http.Redirect(w, r, "/login?ref="+url.QueryEscape(r.URL.Query().Get("state")), http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(srv.URL)

	login, err := client.GenerateLoginURL(context.Background(), "custom-agent/1.0")
	require.NoError(t, err)

	call := <-calls
	got := call.query
	require.Equal(t, "custom-agent/1.0", call.userAgent)
	require.Equal(t, login.State.State, got.Get("state"))
	require.Equal(t, nso.RedirectURI, got.Get("redirect_uri"))
	require.Equal(t, nso.ClientID, got.Get("client_id"))
	require.Equal(t, nso.Scope, got.Get("scope"))
	require.Equal(t, "session_token_code", got.Get("response_type"))
	require.Equal(t, login.State.Challenge, got.Get("session_token_code_challenge"))
	require.Equal(t, "S256", got.Get("session_token_code_challenge_method"))
	require.Equal(t, "login_form", got.Get("theme"))

	// URL after redirects is returned
	require.Equal(t, srv.URL+"/login?ref="+url.QueryEscape(login.State.State), login.URL)

	// Every call uses fresh material
	again, err := client.GenerateLoginURL(context.Background(), "")
	require.NoError(t, err)
	require.NotEqual(t, login.State.State, again.State.State)
	require.NotEqual(t, login.State.Verifier, again.State.Verifier)
	require.Equal(t, nso.DefaultUserAgent, (<-calls).userAgent)
}

func TestGenerateLoginURLRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateLoginURL(context.Background(), "")
	require.ErrorIs(t, err, errx.ErrIdentityProvider)
	require.Contains(t, err.Error(), "status 503")
}

func TestAuthorizeURL(t *testing.T) {
	t.Parallel()

	client := nso.NewClient()
	state := &nso.LoginState{State: "s", Verifier: "v", Challenge: "c"}

	u, err := url.Parse(client.AuthorizeURL(state))
	require.NoError(t, err)
	require.Equal(t, "accounts.nintendo.com", u.Host)
	require.Equal(t, "/connect/1.0.0/authorize", u.Path)
	require.Equal(t, "c", u.Query().Get("session_token_code_challenge"))
	require.Empty(t, u.Query().Get("session_token_code_verifier"), "verifier never leaves the client")
}
