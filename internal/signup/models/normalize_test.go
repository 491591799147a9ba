package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfsignup/pkg/attrs"
	dErrors "selfsignup/pkg/domain-errors"
)

func TestNormalize(t *testing.T) {
	t.Run("claims keep insertion order and root dialect", func(t *testing.T) {
		var claims attrs.Map
		require.NoError(t, json.Unmarshal([]byte(`{"givenname":"dinali","lastname":"silva"}`), &claims))

		out, err := Normalize(claims, attrs.Map{}, attrs.Map{})
		require.NoError(t, err)
		require.Len(t, out.Claims, 2)
		assert.Equal(t, "givenname", out.Claims[0].Name)
		assert.Equal(t, "lastname", out.Claims[1].Name)
		assert.Equal(t, RootDialect, out.Claims[0].Dialect)
		assert.Equal(t, "dinali", out.Claims[0].Value)
	})

	t.Run("credentials are moved out of the source map", func(t *testing.T) {
		creds := attrs.FromPairs("password", "s3cret")
		out, err := Normalize(attrs.FromPairs(EmailClaim, "a@b.com"), creds, attrs.Map{})
		require.NoError(t, err)
		require.Len(t, out.Credentials, 1)
		assert.Equal(t, "password", out.Credentials[0].Type)
		assert.Equal(t, []byte("s3cret"), out.Credentials[0].Secret())
		assert.Empty(t, creds[0].Value)
	})

	t.Run("properties keep duplicates in order", func(t *testing.T) {
		props := attrs.FromPairs("callback", "https://a", "callback", "https://b")
		out, err := Normalize(attrs.Map{}, attrs.Map{}, props)
		require.NoError(t, err)
		assert.Equal(t, []Property{{Key: "callback", Value: "https://a"}, {Key: "callback", Value: "https://b"}}, out.Properties)
	})

	t.Run("nil maps are invalid arguments", func(t *testing.T) {
		_, err := Normalize(nil, attrs.Map{}, attrs.Map{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
		_, err = Normalize(attrs.Map{}, nil, attrs.Map{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
		_, err = Normalize(attrs.Map{}, attrs.Map{}, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
		_, err = NormalizeClaims(nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("duplicate claim names are rejected", func(t *testing.T) {
		_, err := NormalizeClaims(attrs.FromPairs("email", "a@b.com", "email", "c@d.com"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})
}

func TestCredentialNeverRendersSecret(t *testing.T) {
	c := NewCredential("password", []byte("hunter2"))
	assert.NotContains(t, fmt.Sprintf("%v %s %+v", c, c, c), "hunter2")

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("register", "credential", c)
	assert.NotContains(t, buf.String(), "hunter2")

	c.Wipe()
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0}, c.Secret())
}
