package ssl

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSelfSignedPEM(t *testing.T) string {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "mock-root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "mock-certs.pem")
	require.NoError(t, os.WriteFile(file, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return file
}

func TestAppendPEMFileToRootCAPool(t *testing.T) {
	certPool, err := AppendPEMFileToRootCAPool(x509.NewCertPool(), writeSelfSignedPEM(t))

	require.NoError(t, err)
	assert.Len(t, certPool.Subjects(), 1) //nolint:staticcheck
}

func TestAppendPEMFileToRootCAPoolFails(t *testing.T) {
	testCases := []struct {
		description string
		file        string
	}{
		{description: "Missing file", file: filepath.Join(t.TempDir(), "missing.pem")},
		{description: "Not a certificate", file: func() string {
			file := filepath.Join(t.TempDir(), "garbage.pem")
			require.NoError(t, os.WriteFile(file, []byte("garbage"), 0o600))
			return file
		}()},
	}

	for _, test := range testCases {
		certPool, err := AppendPEMFileToRootCAPool(nil, test.file)
		assert.Error(t, err, test.description)
		assert.NotNil(t, certPool, test.description)
	}
}

func TestAppendPEMFileToRootCAPoolWithoutFile(t *testing.T) {
	certPool := GetRootCAPool()
	got, err := AppendPEMFileToRootCAPool(certPool, "")
	assert.NoError(t, err)
	assert.Same(t, certPool, got)
}
