/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

const (
	// DefaultRSAKeySize is the key size used when none is given.
	DefaultRSAKeySize = 2048
	// DefaultValidity is the validity period for generated CA and leaf
	// certificates (1 year).
	DefaultValidity = 365 * 24 * time.Hour
	// DefaultCountry is the issuing country attribute on generated CAs.
	DefaultCountry = "US"
)

// X.500 unique identifier attribute (id-at-uniqueIdentifier).
var oidUniqueIdentifier = asn1.ObjectIdentifier{2, 5, 4, 45}

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// GeneratePrivateKey returns a PEM-encoded RSA private key. bits <= 0 uses
// DefaultRSAKeySize.
func GeneratePrivateKey(bits int) ([]byte, error) {
	if bits <= 0 {
		bits = DefaultRSAKeySize
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), nil
}

// CSROptions configures GenerateCSR.
type CSROptions struct {
	// OmitUniqueSubjectID drops the per-CSR unique identifier attribute from
	// the subject. The unique ID is what makes a renewal CSR distinct from
	// the one it replaces, so leave it in place when requesting over the
	// relation.
	OmitUniqueSubjectID bool
	Organization        string
	EmailAddress        string
	CountryName         string
	// SANs are added as DNS subject alternative names.
	SANs []string
}

// GenerateCSR builds a PEM-encoded certificate signing request for the given
// subject common name, signed with the given PEM private key.
func GenerateCSR(keyPEM []byte, subject string, opts CSROptions) ([]byte, error) {
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	name := pkix.Name{CommonName: subject}
	if opts.Organization != "" {
		name.Organization = []string{opts.Organization}
	}
	if opts.CountryName != "" {
		name.Country = []string{opts.CountryName}
	}
	if !opts.OmitUniqueSubjectID {
		name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{
			Type:  oidUniqueIdentifier,
			Value: uuid.NewString(),
		})
	}
	if opts.EmailAddress != "" {
		name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{
			Type:  oidEmailAddress,
			Value: opts.EmailAddress,
		})
	}

	template := x509.CertificateRequest{
		Subject:            name,
		DNSNames:           opts.SANs,
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	derBytes, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSR: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: derBytes}), nil
}

// CAOptions configures GenerateCA.
type CAOptions struct {
	// Validity defaults to DefaultValidity.
	Validity time.Duration
	// Country defaults to DefaultCountry.
	Country string
}

// GenerateCA creates a self-signed CA certificate for the given subject,
// returned PEM-encoded.
func GenerateCA(keyPEM []byte, subject string, opts CAOptions) ([]byte, error) {
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	validity := opts.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	country := opts.Country
	if country == "" {
		country = DefaultCountry
	}

	serialNumber, err := randomSerial()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: subject,
			Country:    []string{country},
		},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes}), nil
}

// CertificateOptions configures GenerateCertificate.
type CertificateOptions struct {
	// Validity defaults to DefaultValidity.
	Validity time.Duration
	// AltNames are added as DNS subject alternative names.
	AltNames []string
}

// GenerateCertificate signs a certificate for the given PEM CSR with the
// given PEM CA certificate and key, returned PEM-encoded. The subject and
// public key come from the CSR; content policy beyond validity and SANs is
// the caller's concern.
func GenerateCertificate(csrPEM, caPEM, caKeyPEM []byte, opts CertificateOptions) ([]byte, error) {
	csr, err := parseCSR(csrPEM)
	if err != nil {
		return nil, err
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("CSR signature check failed: %w", err)
	}
	caCert, err := ParseCertificate(caPEM)
	if err != nil {
		return nil, err
	}
	caKey, err := parsePrivateKey(caKeyPEM)
	if err != nil {
		return nil, err
	}
	validity := opts.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}

	serialNumber, err := randomSerial()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      csr.Subject,
		DNSNames:     opts.AltNames,
		NotBefore:    now,
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, caCert, csr.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign certificate: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes}), nil
}

// GeneratePFX packages a PEM certificate and its PEM private key into an
// encrypted PKCS#12 archive.
func GeneratePFX(certPEM, keyPEM []byte, password string) ([]byte, error) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	pfx, err := pkcs12.Modern.Encode(key, cert, nil, password)
	if err != nil {
		return nil, fmt.Errorf("failed to encode PKCS#12 package: %w", err)
	}
	return pfx, nil
}

// ParseCertificate decodes a PEM certificate.
func ParseCertificate(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// NotAfter returns the expiry timestamp of a PEM certificate.
func NotAfter(certPEM []byte) (time.Time, error) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

func parseCSR(csrPEM []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode CSR PEM")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSR: %w", err)
	}
	return csr, nil
}

// parsePrivateKey decodes a PEM RSA key, trying PKCS#1 first with a PKCS#8
// fallback.
func parsePrivateKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("found non-RSA private key type")
	}
	return rsaKey, nil
}

func randomSerial() (*big.Int, error) {
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serialNumber, nil
}
