package file

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io/ioutil"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
	"github.com/lamassuiot/dcrl/pkg/secrets/identity"
	"github.com/lamassuiot/dcrl/pkg/utils"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

var ErrNotEd25519 = errors.New("key is not an ed25519 private key")

type file struct {
	key    string
	cert   string
	logger log.Logger
}

func NewFile(key string, cert string, logger log.Logger) identity.Secrets {
	return &file{key: key, cert: cert, logger: logger}
}

func (f *file) GetIdentityCert() (dcrl.Certificate, error) {
	certPEM, err := ioutil.ReadFile(f.cert)
	if err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not load identity certificate")
		return dcrl.Certificate{}, err
	}
	cert, err := utils.DecodeCertificate(certPEM)
	if err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not parse identity certificate")
		return dcrl.Certificate{}, err
	}
	level.Info(f.logger).Log("msg", "Identity certificate loaded", "subject", cert.Subject)
	return cert, nil
}

func (f *file) GetIdentityKey() (ed25519.PrivateKey, error) {
	keyPEM, err := ioutil.ReadFile(f.key)
	if err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not load identity key")
		return nil, err
	}
	key, err := DecodeKey(keyPEM)
	if err != nil {
		level.Error(f.logger).Log("err", err, "msg", "Could not parse identity key")
		return nil, err
	}
	level.Info(f.logger).Log("msg", "Identity key loaded")
	return key, nil
}

func (f *file) GetIdentityCertFile() string {
	return f.cert
}

func (f *file) GetIdentityKeyFile() string {
	return f.key
}

func DecodeKey(data []byte) (ed25519.PrivateKey, error) {
	pemBlock, _ := pem.Decode(data)
	if err := utils.CheckPEMBlock(pemBlock, utils.KeyPEMBlockType); err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKCS8PrivateKey(pemBlock.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return key, nil
}

// WriteCertificate stores cert at path in the format GetIdentityCert reads.
func WriteCertificate(path string, cert dcrl.Certificate) error {
	data, err := utils.EncodeCertificate(cert)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0644)
}

// WriteKey stores key as PKCS#8 PEM, readable only by the owner.
func WriteKey(path string, key ed25519.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: utils.KeyPEMBlockType, Bytes: der}), 0600)
}

func WritePublicKey(path string, pub ed25519.PublicKey) error {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: utils.PubPEMBlockType, Bytes: der}), 0644)
}
