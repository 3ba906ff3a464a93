package utils

import (
	"encoding/json"
	"encoding/pem"
	"errors"

	"github.com/lamassuiot/dcrl/pkg/dcrl"
)

const (
	CertPEMBlockType = "DCRL CERTIFICATE"
	KeyPEMBlockType  = "PRIVATE KEY"
	PubPEMBlockType  = "PUBLIC KEY"
)

func CheckPEMBlock(pemBlock *pem.Block, blockType string) error {
	if pemBlock == nil {
		return errors.New("cannot find the next PEM formatted block")
	}
	if pemBlock.Type != blockType || len(pemBlock.Headers) != 0 {
		return errors.New("unmatched type of headers")
	}
	return nil
}

// EncodeCertificate wraps the JSON form of cert in a PEM block.
func EncodeCertificate(cert dcrl.Certificate) ([]byte, error) {
	body, err := json.Marshal(cert)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: CertPEMBlockType, Bytes: body}), nil
}

// DecodeCertificate parses the first PEM block of data as a certificate.
func DecodeCertificate(data []byte) (dcrl.Certificate, error) {
	pemBlock, _ := pem.Decode(data)
	if err := CheckPEMBlock(pemBlock, CertPEMBlockType); err != nil {
		return dcrl.Certificate{}, err
	}
	var cert dcrl.Certificate
	if err := json.Unmarshal(pemBlock.Bytes, &cert); err != nil {
		return dcrl.Certificate{}, err
	}
	if cert.IsZero() {
		return dcrl.Certificate{}, errors.New("empty certificate")
	}
	return cert, nil
}
