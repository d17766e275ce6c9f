// Package sign implements request canonicalization and RSA signing for
// gateway calls.
//
// Parameters are flattened into a canonical string before signing:
//
//	content := sign.Canonicalize(sign.Params{"app_id": "2021", "method": "alipay.trade.query"})
//	// app_id=2021&method=alipay.trade.query
//
// An Engine signs that string with the application private key and
// verifies gateway responses with the gateway public key:
//
//	engine := sign.NewEngine(sign.WithCharset("utf-8"))
//	signature, err := engine.Sign([]byte(content), privateKey, sign.RSA2)
//	ok, err := engine.Verify(result, signature, publicKey, sign.RSA2)
//
// Keys are carried as KeyMaterial: the raw base64 body exported by the
// gateway console, or a full PEM document.
package sign
