package models

import (
	"selfsignup/pkg/attrs"
	dErrors "selfsignup/pkg/domain-errors"
)

// Normalized is the canonical form of a registration or resend request.
type Normalized struct {
	Claims      []Claim
	Credentials []Credential
	Properties  []Property
}

// Normalize converts raw attribute maps into claim, credential and property
// lists. Input order is preserved. Credential values are moved: the entries
// in credentials are wiped once converted. Properties keep duplicate keys.
func Normalize(claims, credentials, properties attrs.Map) (Normalized, error) {
	if claims == nil || credentials == nil || properties == nil {
		return Normalized{}, dErrors.New(dErrors.CodeInvalidArgument, "claims, credentials and properties are required")
	}
	out, err := normalizeClaims(claims)
	if err != nil {
		return Normalized{}, err
	}

	creds := make([]Credential, 0, len(credentials))
	for _, p := range credentials {
		creds = append(creds, NewCredential(p.Key, []byte(p.Value)))
	}
	credentials.Wipe()

	return Normalized{
		Claims:      out,
		Credentials: creds,
		Properties:  NormalizeProperties(properties),
	}, nil
}

// NormalizeClaims converts a claims map alone, for the resend path.
func NormalizeClaims(claims attrs.Map) ([]Claim, error) {
	if claims == nil {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "claims are required")
	}
	return normalizeClaims(claims)
}

// NormalizeProperties converts a properties map; nil yields an empty list.
func NormalizeProperties(properties attrs.Map) []Property {
	props := make([]Property, 0, len(properties))
	for _, p := range properties {
		props = append(props, Property{Key: p.Key, Value: p.Value})
	}
	return props
}

func normalizeClaims(claims attrs.Map) ([]Claim, error) {
	out := make([]Claim, 0, len(claims))
	seen := make(map[string]struct{}, len(claims))
	for _, p := range claims {
		if _, dup := seen[p.Key]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, "duplicate claim: "+p.Key)
		}
		seen[p.Key] = struct{}{}
		out = append(out, NewClaim(p.Key, p.Value))
	}
	return out, nil
}
