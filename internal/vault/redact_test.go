package vault

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cfgvault/internal/config"
	"github.com/illarion/cfgvault/internal/document"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

func TestMask(t *testing.T) {
	tests := []struct {
		name string
		in   document.Value
		want document.Value
	}{
		{"long string", document.String("abcdefghijkl"), document.String("***ijkl")},
		{"exactly ten", document.String("0123456789"), document.String("***6789")},
		{"short string", document.String("hunter2"), document.String("********")},
		{"unicode", document.String("пароль-секретный"), document.String("***тный")},
		{"empty string", document.String(""), document.String("")},
		{"null", document.Null(), document.Null()},
		{"number", document.Int(1234), document.String("********")},
		{"bool", document.Bool(true), document.String("********")},
		{"map", document.MapOf(map[string]document.Value{"k": document.String("v")}), document.String("********")},
		{"list", document.List(document.String("a")), document.String("********")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mask(tt.in)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestRedactorIsSensitive(t *testing.T) {
	r := NewRedactor(config.DefaultSensitivePatterns)

	for _, k := range []string{"bot_token", "BOT_TOKEN", "admin_password", "api_secret", "db_passwd", "stripe_api_key", "credentials", "ssh_private_key", "apikey"} {
		assert.True(t, r.IsSensitive(k), k)
	}
	for _, k := range []string{"bot_name", "owner_id", "welcome_message", "features", "language"} {
		assert.False(t, r.IsSensitive(k), k)
	}
	assert.True(t, r.IsSensitivePath("cloudinary.api_secret"))
	assert.False(t, r.IsSensitivePath("cloudinary.cloud_name"))
}

func TestRedactNested(t *testing.T) {
	r := NewRedactor([]string{" Secret ", "", "credential"})

	doc := document.New()
	_, err := doc.Set("services.s3.secret_key", document.String("AKIA-very-long-secret"))
	require.NoError(t, err)
	_, err = doc.Set("services.s3.region", document.String("eu-west-1"))
	require.NoError(t, err)
	_, err = doc.Set("credentials.user", document.String("root"))
	require.NoError(t, err)
	_, err = doc.Set("list", document.List(
		document.MapOf(map[string]document.Value{"secret": document.String("abc")}),
		document.String("plain"),
	))
	require.NoError(t, err)

	safe := r.Redact(doc)

	got, _ := safe.Get("services.s3.secret_key", document.Null()).AsString()
	assert.Equal(t, "***cret", got)
	got, _ = safe.Get("services.s3.region", document.Null()).AsString()
	assert.Equal(t, "eu-west-1", got)
	got, _ = safe.Get("credentials", document.Null()).AsString()
	assert.Equal(t, "********", got)

	items, ok := safe.Get("list", document.Null()).Items()
	require.True(t, ok)
	require.Len(t, items, 2)
	inner, _ := items[0].Field("secret")
	s, _ := inner.AsString()
	assert.Equal(t, "********", s)
	s, _ = items[1].AsString()
	assert.Equal(t, "plain", s)

	// input untouched
	raw, _ := doc.Get("services.s3.secret_key", document.Null()).AsString()
	assert.Equal(t, "AKIA-very-long-secret", raw)
}
