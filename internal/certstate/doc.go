// Package certstate holds the certificate identity used to sign requests
// and verify gateway responses: the application certificate SN, the root
// chain SN, and the gateway certificate SN with its public key.
//
// The identity is loaded from certificate files by Setup and replaced when
// those files change (see Watch). When the gateway signs with a
// certificate the state has not seen, Refresh downloads it once, however
// many requests observe the new SN concurrently, and commits it only after
// its own SN is confirmed to match the claim. Downloaded certificates are
// optionally shared through an internal/cache backend so that other
// processes skip the download.
package certstate
