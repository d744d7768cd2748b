package ftoken

import (
	"bytes"
	"strconv"
)

// Step selects the provider's hash method.
type Step int

const (
	// StepLogin hashes the Nintendo Account ID token for Account/Login.
	StepLogin Step = 1
	// StepWebService hashes the web API credential for GetWebServiceToken.
	StepWebService Step = 2
)

// Params is one attestation request.
type Params struct {
	// Token is the identity token to attest: the NA ID token for step 1,
	// the web API credential for step 2.
	Token string
	Step  Step

	// NAID is the Nintendo Account user id.
	NAID string

	// CoralUserID is the platform user id returned by Account/Login.
	// Required for step 2.
	CoralUserID string

	// AppVersion is sent as X-znca-Version.
	AppVersion string
}

type request struct {
	Token       string `json:"token"`
	HashMethod  Step   `json:"hash_method"`
	NAID        string `json:"na_id,omitempty"`
	CoralUserID string `json:"coral_user_id,omitempty"`
}

// Result is the provider's answer. It is consumed by the next protocol step
// and never persisted.
type Result struct {
	F         string
	RequestID string
	Timestamp Timestamp
}

// Timestamp is the provider's millisecond timestamp. Providers disagree on
// whether it is a JSON number or a string; both decode, and it always
// encodes as a number.
type Timestamp int64

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*ts = Timestamp(v)
	return nil
}

type response struct {
	F         *string    `json:"f"`
	RequestID *string    `json:"request_id"`
	Timestamp *Timestamp `json:"timestamp"`

	// Error fields used by imink and nxapi when they refuse a request
	Error            string `json:"error"`
	ErrorDescription string `json:"error_message"`
}
