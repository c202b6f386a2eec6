package ipainfo

import (
	"crypto/x509"
	"fmt"

	gop12 "software.sslmate.com/src/go-pkcs12"
)

// SigningIdentity is the certificate side of a PKCS#12 signing identity.
// The private key is decoded but never kept.
type SigningIdentity struct {
	Certificate *x509.Certificate
	TeamID      string
}

// LoadSigningIdentity decodes a PKCS#12 file
func LoadSigningIdentity(p12Data []byte, password string) (*SigningIdentity, error) {
	_, cert, _, err := gop12.DecodeChain(p12Data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode P12: %w", err)
	}

	return &SigningIdentity{
		Certificate: cert,
		TeamID:      extractTeamID(cert),
	}, nil
}

// CommonName returns the subject common name of the signing certificate
func (s *SigningIdentity) CommonName() string {
	return s.Certificate.Subject.CommonName
}

// MatchesProfile reports whether the identity's certificate is embedded in
// the provisioning profile
func (s *SigningIdentity) MatchesProfile(profile *ProvisioningProfile) bool {
	if profile == nil {
		return false
	}
	return profile.MatchesCertificate(s.Certificate)
}

func extractTeamID(cert *x509.Certificate) string {
	// Team ID is typically in the Organizational Unit field
	for _, ou := range cert.Subject.OrganizationalUnit {
		if len(ou) == 10 { // Apple Team IDs are 10 characters
			return ou
		}
	}
	return ""
}
