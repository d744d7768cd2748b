package exchange

import (
	"errors"
	"strings"
)

// ErrProvidersExhausted is wrapped, together with the last cause, when every
// configured attestation provider has failed.
var ErrProvidersExhausted = errors.New("all attestation providers failed")

// Stage names a step of the exchange.
type Stage string

const (
	StageSessionToken          Stage = "session_token"
	StageUserProfile           Stage = "user_profile"
	StageLoginAttestation      Stage = "login_attestation"
	StageAccountLogin          Stage = "account_login"
	StageWebServiceAttestation Stage = "web_service_attestation"
	StageWebServiceToken       Stage = "web_service_token"
	StageBulletToken           Stage = "bullet_token"
)

// Error is returned by every Exchanger operation. Provider is empty for
// stages that do not talk to an attestation provider. Match the cause with
// errors.Is against the errx kinds, ErrProvidersExhausted or context errors.
type Error struct {
	Stage    Stage
	Provider string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("exchange ")
	b.WriteString(string(e.Stage))
	if e.Provider != "" {
		b.WriteString(" via ")
		b.WriteString(e.Provider)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func stageError(stage Stage, provider string, err error) *Error {
	return &Error{Stage: stage, Provider: provider, Err: err}
}
