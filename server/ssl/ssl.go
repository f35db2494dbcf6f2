package ssl

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/golang/glog"
)

// GetRootCAPool returns the system root certificates, or an empty pool when they cannot be loaded.
func GetRootCAPool() *x509.CertPool {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		glog.Warningf("system root certificates unavailable: %v", err)
		return x509.NewCertPool()
	}
	return pool
}

// AppendPEMFileToRootCAPool adds every certificate in pemFileName to certPool.
func AppendPEMFileToRootCAPool(certPool *x509.CertPool, pemFileName string) (*x509.CertPool, error) {
	if certPool == nil {
		certPool = x509.NewCertPool()
	}
	if pemFileName == "" {
		return certPool, nil
	}

	pemCerts, err := os.ReadFile(pemFileName)
	if err != nil {
		return certPool, fmt.Errorf("failed to read file %s: %v", pemFileName, err)
	}
	if !certPool.AppendCertsFromPEM(pemCerts) {
		return certPool, fmt.Errorf("no certificates found in %s", pemFileName)
	}
	return certPool, nil
}
