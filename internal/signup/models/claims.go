package models

import "log/slog"

const (
	// RootDialect is the claim namespace every normalized claim is tagged with.
	RootDialect = "http://wso2.org/claims"

	UsernameClaim = RootDialect + "/username"
	EmailClaim    = RootDialect + "/emailaddress"
	MobileClaim   = RootDialect + "/mobile"
)

// Claim is one named user attribute within a dialect.
type Claim struct {
	Dialect string `json:"dialect"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// NewClaim tags name/value with the root dialect.
func NewClaim(name, value string) Claim {
	return Claim{Dialect: RootDialect, Name: name, Value: value}
}

// Credential is secret material supplied at registration (e.g. a password).
// It never renders its secret through fmt or slog.
type Credential struct {
	Type   string
	secret []byte
}

// NewCredential takes ownership of secret.
func NewCredential(kind string, secret []byte) Credential {
	return Credential{Type: kind, secret: secret}
}

// Secret exposes the raw material to the identity store.
func (c Credential) Secret() []byte {
	return c.secret
}

// Wipe zeroes the secret in place.
func (c Credential) Wipe() {
	for i := range c.secret {
		c.secret[i] = 0
	}
}

func (c Credential) String() string {
	return c.Type + ":[REDACTED]"
}

func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// WipeAll zeroes every credential's secret.
func WipeAll(creds []Credential) {
	for _, c := range creds {
		c.Wipe()
	}
}

// Property is free-form request metadata such as a callback URL or locale.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Well-known property keys.
const (
	PropertyCallback            = "callback"
	PropertyNotificationChannel = "notificationChannel"
	PropertyLocale              = "locale"
)

// ClaimValue returns the value of the first claim named name.
func ClaimValue(claims []Claim, name string) (string, bool) {
	for _, c := range claims {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// PropertyValue returns the value of the first property with key.
func PropertyValue(props []Property, key string) (string, bool) {
	for _, p := range props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}
