package client

import (
	"context"

	"github.com/vyrodovalexey/alipaykernel/internal/certstate"
	"github.com/vyrodovalexey/alipaykernel/internal/observability"
	"github.com/vyrodovalexey/alipaykernel/internal/sign"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
)

// CertDownloadMethod fetches the gateway certificate for a serial number.
// Its response is trusted without verification: no key to check it
// against exists until it has been processed.
const CertDownloadMethod = "alipay.open.app.alipaycert.download"

// RequestContext describes the request a reply answers.
type RequestContext struct {
	Method   string
	SignType sign.Algorithm
}

// Validator checks gateway replies.
type Validator struct {
	engine    *sign.Engine
	state     *certstate.State
	fetcher   certstate.Fetcher
	inlineKey sign.KeyMaterial
	logger    observability.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithInlinePublicKey verifies with a configured gateway public key
// instead of the one derived from the gateway certificate.
func WithInlinePublicKey(key sign.KeyMaterial) ValidatorOption {
	return func(v *Validator) {
		v.inlineKey = key
	}
}

// WithFetcher sets how unknown gateway certificates are downloaded.
func WithFetcher(fetcher certstate.Fetcher) ValidatorOption {
	return func(v *Validator) {
		v.fetcher = fetcher
	}
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// NewValidator creates a Validator over the shared certificate state.
func NewValidator(engine *sign.Engine, state *certstate.State, opts ...ValidatorOption) *Validator {
	v := &Validator{
		engine: engine,
		state:  state,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate parses body and returns the result object once the reply is
// known to be a successful, authentic answer to req.
//
// A non-success result code is a *util.BusinessError. When the reply
// names a gateway certificate other than the cached one, that
// certificate is downloaded first and its key is used for verification.
// Replies to CertDownloadMethod are never verified.
func (v *Validator) Validate(ctx context.Context, body []byte, req RequestContext) (*Object, error) {
	env, err := ParseEnvelope(body, req.Method)
	if err != nil {
		return nil, err
	}
	result := env.Result

	if code := result.String("code"); code != util.SuccessCode {
		return nil, util.NewBusinessError(req.Method, code,
			result.String("msg"), result.String("sub_code"), result.String("sub_msg"))
	}

	if req.Method == CertDownloadMethod {
		return result, nil
	}

	key, err := v.resolveKey(ctx, env.CertSN)
	if err != nil {
		return nil, err
	}

	ok, err := v.engine.Verify(result, env.Sign, key, req.SignType)
	if err != nil {
		return nil, err
	}
	if !ok {
		v.logger.WithContext(ctx).Warn("gateway response signature mismatch",
			observability.String("method", req.Method),
			observability.String("alipay_cert_sn", env.CertSN),
		)
		return nil, util.NewInvalidSignError("response signature verification failed")
	}
	return result, nil
}

// resolveKey returns the key the reply must verify against. A key
// committed together with a gateway SN, by Setup or a refresh, takes
// precedence over the inline key.
func (v *Validator) resolveKey(ctx context.Context, claimedSN string) (sign.KeyMaterial, error) {
	key := v.inlineKey
	var id certstate.Identity
	if v.state != nil {
		id = v.state.Snapshot()
	}
	if key.IsBlank() || (id.GatewayCertSN != "" && !id.GatewayPublicKey.IsBlank()) {
		key = id.GatewayPublicKey
	}

	if claimedSN == "" || claimedSN == id.GatewayCertSN {
		return key, nil
	}
	if v.state == nil {
		return "", util.NewRuntimeError("gateway certificate changed but no certificate state is configured")
	}

	v.logger.WithContext(ctx).Info("gateway certificate SN changed, refreshing",
		observability.String("cached_sn", id.GatewayCertSN),
		observability.String("claimed_sn", claimedSN),
	)
	refreshed, err := v.state.Refresh(ctx, claimedSN, v.fetcher)
	if err != nil {
		return "", err
	}
	return refreshed.GatewayPublicKey, nil
}
