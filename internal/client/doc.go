// Package client calls the payment gateway: it builds and signs the system
// parameters of a request, posts it through internal/transport, and
// validates the reply before handing the result object to the caller.
//
// Reply validation runs in a fixed order. The envelope is parsed, the
// result code is checked, the verification key is resolved, the claimed
// gateway certificate is reconciled with the cached one, and finally the
// signature over the exact result bytes is verified. Replies to the
// certificate download method skip reconciliation and verification.
//
// Example usage:
//
//	cfg, err := config.LoadConfig("alipay.yaml")
//	if err != nil {
//		return err
//	}
//	c, err := client.New(cfg, client.Options{Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	res, err := c.Post(ctx, "alipay.trade.query", map[string]any{
//		"out_trade_no": "20150320010101001",
//	})
package client
