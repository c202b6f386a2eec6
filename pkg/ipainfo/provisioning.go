package ipainfo

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"go.mozilla.org/pkcs7"
	"howett.net/plist"
)

// Provisioning profile keys
const (
	KeyProfileName          = "Name"
	KeyTeamName             = "TeamName"
	KeyTeamIdentifier       = "TeamIdentifier"
	KeyAppIDPrefix          = "ApplicationIdentifierPrefix"
	KeyCreationDate         = "CreationDate"
	KeyExpirationDate       = "ExpirationDate"
	KeyUUID                 = "UUID"
	KeyProvisionsAllDevices = "ProvisionsAllDevices"
	KeyProvisionedDevices   = "ProvisionedDevices"
	KeyEntitlements         = "Entitlements"
	KeyGetTaskAllow         = "get-task-allow"
)

// Export methods derived from a provisioning profile
const (
	ExportMethodAppStore    = "app-store"
	ExportMethodAdHoc       = "ad-hoc"
	ExportMethodEnterprise  = "enterprise"
	ExportMethodDevelopment = "development"
)

var (
	xmlPlistStart = []byte("<?xml")
	xmlPlistEnd   = []byte("</plist>")
)

// ProvisioningProfile represents a parsed .mobileprovision file
type ProvisioningProfile struct {
	Dict Dict

	// DeveloperCertificates holds the DER encoded signing certificates.
	// Data values are not carried in Dict, so they are decoded separately.
	DeveloperCertificates [][]byte
}

// profileCertificates is the typed view used to decode data values
type profileCertificates struct {
	DeveloperCertificates [][]byte `plist:"DeveloperCertificates"`
}

// ExtractProfilePlist locates the property list inside the CMS (PKCS#7)
// envelope of a provisioning profile. The envelope is not verified.
func ExtractProfilePlist(data []byte) ([]byte, error) {
	// Profiles carry an XML plist, so scanning for its markers is enough
	if start := bytes.Index(data, xmlPlistStart); start >= 0 {
		if end := bytes.LastIndex(data, xmlPlistEnd); end > start {
			return data[start : end+len(xmlPlistEnd)], nil
		}
	}

	// Otherwise unwrap the CMS container and use its content as is
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: no plist markers and not a PKCS#7 container: %v", ErrProvisioningDecode, err)
	}
	if len(p7.Content) == 0 {
		return nil, fmt.Errorf("%w: PKCS#7 container has no content", ErrProvisioningDecode)
	}

	return p7.Content, nil
}

// ParseProvisioningProfile parses a .mobileprovision file
func ParseProvisioningProfile(data []byte) (*ProvisioningProfile, error) {
	payload, err := ExtractProfilePlist(data)
	if err != nil {
		return nil, err
	}

	dict, err := ParsePlist(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningDecode, err)
	}

	profile := &ProvisioningProfile{Dict: dict}

	// A malformed certificate list only costs the identity check
	var certs profileCertificates
	if _, err := plist.Unmarshal(payload, &certs); err == nil {
		profile.DeveloperCertificates = certs.DeveloperCertificates
	}

	return profile, nil
}

// Name returns the profile name
func (p *ProvisioningProfile) Name() string {
	return p.Dict.StringOr(KeyProfileName)
}

// TeamID returns the team identifier from the profile
func (p *ProvisioningProfile) TeamID() string {
	if ids, ok := p.Dict.Strings(KeyTeamIdentifier); ok && len(ids) > 0 {
		return ids[0]
	}
	if prefixes, ok := p.Dict.Strings(KeyAppIDPrefix); ok && len(prefixes) > 0 {
		return prefixes[0]
	}
	return ""
}

// IsExpired checks if the provisioning profile has expired at the given time
func (p *ProvisioningProfile) IsExpired(now time.Time) bool {
	exp, ok := p.Dict.Time(KeyExpirationDate)
	return ok && now.After(exp)
}

// ExportMethod guesses the distribution method the profile was made for
func (p *ProvisioningProfile) ExportMethod() string {
	// Enterprise/distribution profiles provision all devices
	if all, _ := p.Dict.Bool(KeyProvisionsAllDevices); all {
		return ExportMethodEnterprise
	}

	if devices, ok := p.Dict.Array(KeyProvisionedDevices); ok && len(devices) > 0 {
		if ent, ok := p.Dict.Dict(KeyEntitlements); ok {
			if allow, _ := ent.Bool(KeyGetTaskAllow); allow {
				return ExportMethodDevelopment
			}
		}
		return ExportMethodAdHoc
	}

	return ExportMethodAppStore
}

// Info converts the profile into the fields reported in Metadata
func (p *ProvisioningProfile) Info() ProvisioningInfo {
	info := ProvisioningInfo{
		ExportMethod: p.ExportMethod(),
	}

	if t, ok := p.Dict.Time(KeyCreationDate); ok {
		info.CreationDate = &t
	}
	if t, ok := p.Dict.Time(KeyExpirationDate); ok {
		info.ExpirationDate = &t
	}
	if s, ok := p.Dict.String(KeyTeamName); ok {
		info.TeamName = &s
	}
	if s := p.TeamID(); s != "" {
		info.TeamIdentifier = &s
	}
	if s, ok := p.Dict.String(KeyProfileName); ok {
		info.ProfileName = &s
	}
	if s, ok := p.Dict.String(KeyUUID); ok {
		info.UUID = &s
	}
	if devices, ok := p.Dict.Array(KeyProvisionedDevices); ok {
		info.ProvisionedDevices = len(devices)
	}

	// Absent means false once a profile is present
	all, _ := p.Dict.Bool(KeyProvisionsAllDevices)
	info.ProvisionsAllDevices = &all

	return info
}

// Certificates parses and returns the developer certificates from the profile
func (p *ProvisioningProfile) Certificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for i, certData := range p.DeveloperCertificates {
		cert, err := x509.ParseCertificate(certData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// MatchesCertificate checks if the given certificate is one of the profile's
// developer certificates
func (p *ProvisioningProfile) MatchesCertificate(cert *x509.Certificate) bool {
	for _, certData := range p.DeveloperCertificates {
		profileCert, err := x509.ParseCertificate(certData)
		if err != nil {
			continue
		}
		if cert.Equal(profileCert) {
			return true
		}
	}
	return false
}
