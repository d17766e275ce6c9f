package sign

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testKeyPair struct {
	private    *rsa.PrivateKey
	privateRaw KeyMaterial
	publicRaw  KeyMaterial
}

var (
	keyPairsOnce sync.Once
	keyPairs     [2]testKeyPair
	keyPairsErr  error
)

// testKeys returns two distinct RSA key pairs shared by all tests.
func testKeys(t *testing.T) (testKeyPair, testKeyPair) {
	t.Helper()

	keyPairsOnce.Do(func() {
		for i := range keyPairs {
			priv, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				keyPairsErr = err
				return
			}
			pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
			if err != nil {
				keyPairsErr = err
				return
			}
			keyPairs[i] = testKeyPair{
				private:    priv,
				privateRaw: KeyMaterial(base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(priv))),
				publicRaw:  KeyMaterial(base64.StdEncoding.EncodeToString(pub)),
			}
		}
	})
	require.NoError(t, keyPairsErr)
	return keyPairs[0], keyPairs[1]
}
