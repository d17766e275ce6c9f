package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/alipaykernel/internal/util"
)

// Envelope field names.
const (
	FieldSign         = "sign"
	FieldAlipayCertSN = "alipay_cert_sn"
	FieldErrorResult  = "error_response"
)

// Envelope is a parsed gateway reply.
type Envelope struct {
	// ResponseKey is the name of the result member, {method}_response.
	ResponseKey string
	Result      *Object
	Sign        string
	CertSN      string
}

// ResponseKey returns the envelope member that holds the result of method.
func ResponseKey(method string) string {
	return strings.ReplaceAll(method, ".", "_") + "_response"
}

// ParseEnvelope parses a reply to method. A reply without a result object
// for the method is a *util.RuntimeError.
func ParseEnvelope(body []byte, method string) (*Envelope, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, util.NewRuntimeErrorWithCause("malformed gateway response", err)
	}

	key := ResponseKey(method)
	raw, ok := members[key]
	if !ok || bytes.Equal(raw, []byte("null")) {
		msg := fmt.Sprintf("gateway response has no %s member", key)
		if errRaw, ok := members[FieldErrorResult]; ok {
			if errObj, err := ParseObject(errRaw); err == nil {
				msg += fmt.Sprintf(" (error_response code=%s msg=%s sub_code=%s sub_msg=%s)",
					errObj.String("code"), errObj.String("msg"),
					errObj.String("sub_code"), errObj.String("sub_msg"))
			}
		}
		return nil, util.NewRuntimeError(msg)
	}

	result, err := ParseObject(raw)
	if err != nil {
		return nil, util.NewRuntimeErrorWithCause(fmt.Sprintf("gateway response member %s is not an object", key), err)
	}

	env := &Envelope{ResponseKey: key, Result: result}
	if env.Sign, err = stringMember(members, FieldSign); err != nil {
		return nil, err
	}
	if env.CertSN, err = stringMember(members, FieldAlipayCertSN); err != nil {
		return nil, err
	}
	return env, nil
}

func stringMember(members map[string]json.RawMessage, name string) (string, error) {
	raw, ok := members[name]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", util.NewRuntimeErrorWithCause(fmt.Sprintf("gateway response member %s is not a string", name), err)
	}
	return s, nil
}
