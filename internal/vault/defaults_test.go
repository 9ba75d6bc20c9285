package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cfgvault/internal/document"
)

func TestInitDefaults(t *testing.T) {
	v := openVault(t, testConfig(t))

	applied, err := v.InitDefaults()
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, DefaultBotName, mustGetString(t, v, "bot_name"))
	assert.Equal(t, DefaultVersion, mustGetString(t, v, "version"))
	assert.Len(t, mustGetString(t, v, "admin_password"), 22)

	welcome, err := v.Get("features.welcome", document.Null())
	require.NoError(t, err)
	on, ok := welcome.AsBool()
	require.True(t, ok)
	assert.True(t, on)

	interval, err := v.Get("settings.backup_interval", document.Null())
	require.NoError(t, err)
	hours, ok := interval.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(24), hours)

	require.NoError(t, v.Set("bot_name", document.String("Other")))
	applied, err = v.InitDefaults()
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "Other", mustGetString(t, v, "bot_name"))
}

func TestDefaultsPasswordsDiffer(t *testing.T) {
	a, err := Defaults(fixedNow)
	require.NoError(t, err)
	b, err := Defaults(fixedNow)
	require.NoError(t, err)
	assert.False(t, a.Equal(b))

	date, _ := a.Get("setup_date", document.Null()).AsString()
	assert.Equal(t, "2025-03-01T12:00:00Z", date)
}

func TestSetFeature(t *testing.T) {
	v := openVault(t, testConfig(t))

	require.NoError(t, v.SetFeature("music", true))
	got, err := v.Get("features.music", document.Null())
	require.NoError(t, err)
	on, _ := got.AsBool()
	assert.True(t, on)

	require.NoError(t, v.SetFeature("music", false))
	got, err = v.Get("features.music", document.Null())
	require.NoError(t, err)
	on, _ = got.AsBool()
	assert.False(t, on)

	assert.ErrorIs(t, v.SetFeature("a.b", true), document.ErrInvalidPath)
	assert.ErrorIs(t, v.SetFeature("", true), document.ErrInvalidPath)
}

func TestTypedAccessors(t *testing.T) {
	v := openVault(t, testConfig(t))

	tok, err := v.BotToken()
	require.NoError(t, err)
	assert.Empty(t, tok)
	id, err := v.OwnerID()
	require.NoError(t, err)
	assert.Zero(t, id)

	require.NoError(t, v.Set("bot_token", document.String("123:abc")))
	require.NoError(t, v.Set("owner_id", document.Int(987654321)))
	tok, err = v.BotToken()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", tok)
	id, err = v.OwnerID()
	require.NoError(t, err)
	assert.Equal(t, int64(987654321), id)

	require.NoError(t, v.Set("owner_id", document.String("nope")))
	_, err = v.OwnerID()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	v := openVault(t, testConfig(t))
	_, err := v.InitDefaults()
	require.NoError(t, err)

	err = v.Validate()
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	joined := strings.Join(verr.Problems, "\n")
	assert.Contains(t, joined, "bot_token")
	assert.Contains(t, joined, "owner_id")

	require.NoError(t, v.Set("bot_token", document.String("1234567890:AAH-valid_token")))
	require.NoError(t, v.Set("owner_id", document.Int(42)))
	assert.NoError(t, v.Validate())

	require.NoError(t, v.Set("features.music", document.String("yes")))
	assert.ErrorIs(t, v.Validate(), ErrValidation)
}

func TestValidateCustomSchema(t *testing.T) {
	cfg := testConfig(t)
	cfg.SchemaFile = "schema.json"
	schema := `{"type": "object", "required": ["region"]}`
	require.NoError(t, writeFile(cfg.SchemaPath(), schema))

	v := openVault(t, cfg)
	assert.ErrorIs(t, v.Validate(), ErrValidation)
	require.NoError(t, v.Set("region", document.String("eu")))
	assert.NoError(t, v.Validate())
}

func TestImportJSON5(t *testing.T) {
	v := openVault(t, testConfig(t))
	require.NoError(t, v.Set("settings.language", document.String("en")))
	require.NoError(t, v.Set("settings.timezone", document.String("UTC")))

	input := `{
		// written by hand
		bot_token: "123456:from-json5",
		owner_id: 123456789,
		settings: {
			language: "uk",
		},
	}`
	keys, err := v.Import(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"bot_token", "owner_id", "settings"}, keys)

	assert.Equal(t, "123456:from-json5", mustGetString(t, v, "bot_token"))
	assert.Equal(t, "uk", mustGetString(t, v, "settings.language"))
	assert.Equal(t, "UTC", mustGetString(t, v, "settings.timezone"))
	id, err := v.OwnerID()
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), id)
}

func TestImportRejectsNonObject(t *testing.T) {
	v := openVault(t, testConfig(t))
	digest := v.LastDigest()

	_, err := v.Import(strings.NewReader(`[1, 2, 3]`))
	assert.ErrorIs(t, err, document.ErrSerialization)
	_, err = v.Import(strings.NewReader(`{broken`))
	assert.ErrorIs(t, err, document.ErrSerialization)
	assert.Equal(t, digest, v.LastDigest())
}
