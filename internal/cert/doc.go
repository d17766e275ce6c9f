// Package cert derives certificate identities used by the gateway
// protocol.
//
// A certificate SN is the MD5 hex digest of the issuer attributes in
// reverse order, rendered as comma-joined key=value pairs, followed by
// the decimal serial number:
//
//	sn, err := cert.FingerprintOf(pemBytes)
//
// A root chain SN joins the SNs of the RSA-signed certificates of a
// bundle with underscores:
//
//	sn, ok, err := cert.ChainFingerprintOf(bundle)
//
// Watcher reloads certificate files when they change on disk.
package cert
