package client

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/alipaykernel/internal/cert"
	"github.com/vyrodovalexey/alipaykernel/internal/certstate"
	"github.com/vyrodovalexey/alipaykernel/internal/sign"
	"github.com/vyrodovalexey/alipaykernel/internal/util"
	"github.com/vyrodovalexey/alipaykernel/test/helpers"
)

const testMethod = "alipay.trade.query"

func newTestState(t *testing.T, f *helpers.Fixture) *certstate.State {
	t.Helper()

	s := certstate.New()
	require.NoError(t, s.Setup(certstate.Files{
		AppCert:     f.AppCertPath,
		GatewayCert: f.GatewayCertPath,
		RootCert:    f.RootPath,
	}))
	return s
}

func rsa2(method string) RequestContext {
	return RequestContext{Method: method, SignType: sign.RSA2}
}

func TestValidator_Success(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), newTestState(t, f))

	result := helpers.SuccessResult("trade_no", "2013112011001004330000121536", "buyer_logon_id", "159****5620")
	body := helpers.Envelope(testMethod, helpers.Reply{
		Result:  result,
		CertSN:  cert.Fingerprint(f.GatewayCert),
		SignKey: f.GatewayKey.Private,
	})

	res, err := v.Validate(context.Background(), body, rsa2(testMethod))
	require.NoError(t, err)
	assert.Equal(t, result, string(res.Raw()))
	assert.Equal(t, "2013112011001004330000121536", res.String("trade_no"))
}

func TestValidator_FieldOrderIsSigned(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), newTestState(t, f))

	// keys deliberately out of lexical order, with characters Go would
	// escape by default
	result := `{"msg":"Success","code":"10000","z":"<&>","a":"支付宝"}`
	body := helpers.Envelope(testMethod, helpers.Reply{Result: result, SignKey: f.GatewayKey.Private})

	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	require.NoError(t, err)
}

func TestValidator_BusinessError(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), newTestState(t, f))

	body := helpers.Envelope(testMethod, helpers.Reply{
		Result: `{"code":"40004","msg":"Business Failed","sub_code":"ACQ.TRADE_NOT_EXIST","sub_msg":"交易不存在"}`,
		Sign:   "irrelevant",
	})

	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	require.Error(t, err)

	be, ok := util.IsBusiness(err)
	require.True(t, ok)
	assert.Equal(t, testMethod, be.Method)
	assert.Equal(t, "40004", be.Code)
	assert.Equal(t, "Business Failed", be.Msg)
	assert.Equal(t, "ACQ.TRADE_NOT_EXIST", be.SubCode)
	assert.Equal(t, "交易不存在", be.SubMsg)
}

func TestValidator_SignatureMismatch(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), newTestState(t, f))

	// signed by the application key, not the gateway key
	body := helpers.Envelope(testMethod, helpers.Reply{
		Result:  helpers.SuccessResult(),
		SignKey: f.AppKey.Private,
	})

	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	assert.ErrorIs(t, err, util.ErrInvalidSign)
}

func TestValidator_MissingSign(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), newTestState(t, f))

	body := helpers.Envelope(testMethod, helpers.Reply{Result: helpers.SuccessResult()})
	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	assert.ErrorIs(t, err, util.ErrInvalidSign)
}

func TestValidator_NoKey(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), certstate.New())

	body := helpers.Envelope(testMethod, helpers.Reply{Result: helpers.SuccessResult(), SignKey: f.GatewayKey.Private})
	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	assert.ErrorIs(t, err, util.ErrInvalidSign)
}

func TestValidator_InlineKey(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), certstate.New(),
		WithInlinePublicKey(sign.KeyMaterial(f.GatewayKey.PublicRaw)))

	body := helpers.Envelope(testMethod, helpers.Reply{Result: helpers.SuccessResult(), SignKey: f.GatewayKey.Private})
	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	require.NoError(t, err)
}

func TestValidator_RSA(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), newTestState(t, f))

	// an RSA2 signature does not verify as RSA
	body := helpers.Envelope(testMethod, helpers.Reply{Result: helpers.SuccessResult(), SignKey: f.GatewayKey.Private})
	_, err := v.Validate(context.Background(), body, RequestContext{Method: testMethod, SignType: sign.RSA})
	assert.ErrorIs(t, err, util.ErrInvalidSign)
}

func TestValidator_MissingResult(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), newTestState(t, f))

	_, err := v.Validate(context.Background(), []byte(`{"x_response":{}}`), rsa2(testMethod))
	assert.ErrorIs(t, err, util.ErrRuntime)
}

func TestValidator_CertDownloadIsNotVerified(t *testing.T) {
	f := helpers.NewFixture(t)

	var fetches atomic.Int32
	v := NewValidator(sign.NewEngine(), newTestState(t, f),
		WithFetcher(certstate.FetcherFunc(func(context.Context, string) ([]byte, error) {
			fetches.Add(1)
			return nil, nil
		})))

	reply := helpers.CertDownloadReply(f.GatewayCertPEM)
	reply.CertSN = "an-sn-nobody-has"
	body := helpers.Envelope(CertDownloadMethod, reply)

	res, err := v.Validate(context.Background(), body, rsa2(CertDownloadMethod))
	require.NoError(t, err)
	assert.NotEmpty(t, res.String("alipay_cert_content"))
	assert.Zero(t, fetches.Load())
}

func TestValidator_CertDownloadBusinessError(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), newTestState(t, f))

	body := helpers.Envelope(CertDownloadMethod, helpers.Reply{
		Result: `{"code":"40004","msg":"Business Failed","sub_code":"CERT_NOT_EXIST","sub_msg":"cert not exist"}`,
	})
	_, err := v.Validate(context.Background(), body, rsa2(CertDownloadMethod))
	assert.ErrorIs(t, err, util.ErrBusiness)
}

func TestValidator_ReconcilesRotatedCertificate(t *testing.T) {
	f := helpers.NewFixture(t)
	state := newTestState(t, f)

	newKey := helpers.Key(t, 3)
	newCert, newPEM := f.IssueLeaf(t, big.NewInt(2022001), "gateway-rotated", &newKey.Private.PublicKey)
	newSN := cert.Fingerprint(newCert)

	var fetched []string
	v := NewValidator(sign.NewEngine(), state,
		WithFetcher(certstate.FetcherFunc(func(_ context.Context, sn string) ([]byte, error) {
			fetched = append(fetched, sn)
			return newPEM, nil
		})))

	body := helpers.Envelope(testMethod, helpers.Reply{
		Result:  helpers.SuccessResult(),
		CertSN:  newSN,
		SignKey: newKey.Private,
	})

	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	require.NoError(t, err)
	assert.Equal(t, []string{newSN}, fetched)
	assert.Equal(t, newSN, state.Snapshot().GatewayCertSN)

	// the next reply with the same SN uses the cached key
	_, err = v.Validate(context.Background(), body, rsa2(testMethod))
	require.NoError(t, err)
	assert.Len(t, fetched, 1)
}

func TestValidator_ReconcileOverridesInlineKey(t *testing.T) {
	f := helpers.NewFixture(t)

	newKey := helpers.Key(t, 3)
	newCert, newPEM := f.IssueLeaf(t, big.NewInt(2022001), "gateway-rotated", &newKey.Private.PublicKey)

	var fetches atomic.Int32
	v := NewValidator(sign.NewEngine(), certstate.New(),
		WithInlinePublicKey(sign.KeyMaterial(f.GatewayKey.PublicRaw)),
		WithFetcher(certstate.FetcherFunc(func(context.Context, string) ([]byte, error) {
			fetches.Add(1)
			return newPEM, nil
		})))

	body := helpers.Envelope(testMethod, helpers.Reply{
		Result:  helpers.SuccessResult(),
		CertSN:  cert.Fingerprint(newCert),
		SignKey: newKey.Private,
	})
	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	require.NoError(t, err)

	// later replies under the same SN keep using the downloaded key
	_, err = v.Validate(context.Background(), body, rsa2(testMethod))
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load())

	// a reply without an SN is also checked against the committed key
	unsigned := helpers.Envelope(testMethod, helpers.Reply{Result: helpers.SuccessResult(), SignKey: f.GatewayKey.Private})
	_, err = v.Validate(context.Background(), unsigned, rsa2(testMethod))
	assert.ErrorIs(t, err, util.ErrInvalidSign)
}

func TestValidator_ReconcileRejectsWrongCertificate(t *testing.T) {
	f := helpers.NewFixture(t)
	state := newTestState(t, f)
	before := state.Snapshot()

	attacker := helpers.Key(t, 4)
	// a certificate whose SN does not match the claim
	_, attackerPEM := f.IssueLeaf(t, big.NewInt(666), "attacker", &attacker.Private.PublicKey)
	v := NewValidator(sign.NewEngine(), state,
		WithFetcher(certstate.FetcherFunc(func(context.Context, string) ([]byte, error) {
			return attackerPEM, nil
		})))

	body := helpers.Envelope(testMethod, helpers.Reply{
		Result:  helpers.SuccessResult(),
		CertSN:  "0123456789abcdef0123456789abcdef",
		SignKey: attacker.Private,
	})
	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	assert.ErrorIs(t, err, util.ErrInvalidSign)
	assert.Equal(t, before, state.Snapshot())
}

func TestValidator_ReconcileWithoutState(t *testing.T) {
	f := helpers.NewFixture(t)
	v := NewValidator(sign.NewEngine(), nil, WithInlinePublicKey(sign.KeyMaterial(f.GatewayKey.PublicRaw)))

	body := helpers.Envelope(testMethod, helpers.Reply{
		Result:  helpers.SuccessResult(),
		CertSN:  "0123456789abcdef0123456789abcdef",
		SignKey: f.GatewayKey.Private,
	})
	_, err := v.Validate(context.Background(), body, rsa2(testMethod))
	assert.ErrorIs(t, err, util.ErrRuntime)
}
