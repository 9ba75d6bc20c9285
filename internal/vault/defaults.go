package vault

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/illarion/cfgvault/internal/crypto"
	"github.com/illarion/cfgvault/internal/document"
)

const (
	DefaultBotName        = "Nila Bot"
	DefaultVersion        = "2.0.0"
	DefaultWelcomeMessage = "Hello! 👋"
	adminPasswordBytes    = 16
)

// Defaults returns the document a new bot starts with. The admin password
// is random; read it back with Get("admin_password").
func Defaults(now time.Time) (*document.Document, error) {
	raw, err := crypto.GenerateRandom(adminPasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate admin password: %w", err)
	}
	password := base64.RawURLEncoding.EncodeToString(raw)
	crypto.ClearBytes(raw)

	features := document.MapOf(map[string]document.Value{
		"welcome":       document.Bool(true),
		"security":      document.Bool(true),
		"auto_response": document.Bool(true),
		"live_stream":   document.Bool(false),
		"games":         document.Bool(false),
		"music":         document.Bool(false),
	})
	settings := document.MapOf(map[string]document.Value{
		"log_level":       document.String("INFO"),
		"max_file_size":   document.Int(50),
		"auto_backup":     document.Bool(true),
		"backup_interval": document.Int(24),
		"language":        document.String("en"),
		"timezone":        document.String("UTC"),
	})

	return document.FromValue(document.MapOf(map[string]document.Value{
		"bot_name":        document.String(DefaultBotName),
		"bot_token":       document.String(""),
		"owner_id":        document.Int(0),
		"admin_password":  document.String(password),
		"welcome_message": document.String(DefaultWelcomeMessage),
		"setup_date":      document.String(now.UTC().Format(time.RFC3339)),
		"version":         document.String(DefaultVersion),
		"features":        features,
		"settings":        settings,
	}))
}

// InitDefaults fills an empty vault with Defaults. It reports whether the
// defaults were written; a vault that already holds data is left alone.
func (v *Vault) InitDefaults() (bool, error) {
	var applied bool
	err := v.mutate("init_defaults", func(doc *document.Document) (bool, error) {
		if doc.Len() > 0 {
			return false, nil
		}
		defaults, err := Defaults(v.now())
		if err != nil {
			return false, err
		}
		doc.Merge(defaults)
		applied = true
		return true, nil
	})
	if applied {
		v.logger.Info("initialized vault with default settings")
	}
	return applied, err
}

// SetFeature turns features.<name> on or off
func (v *Vault) SetFeature(name string, enabled bool) error {
	if name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("%w: feature name %q", document.ErrInvalidPath, name)
	}
	return v.Set("features."+name, document.Bool(enabled))
}

// BotToken returns the configured bot token, or "" when unset
func (v *Vault) BotToken() (string, error) {
	val, err := v.Get("bot_token", document.String(""))
	if err != nil {
		return "", err
	}
	s, ok := val.AsString()
	if !ok {
		return "", fmt.Errorf("bot_token is %s, want string", val.Kind())
	}
	return s, nil
}

// OwnerID returns the configured owner id, or 0 when unset
func (v *Vault) OwnerID() (int64, error) {
	val, err := v.Get("owner_id", document.Int(0))
	if err != nil {
		return 0, err
	}
	id, ok := val.AsInt()
	if !ok {
		return 0, fmt.Errorf("owner_id is %s, want integer", val.Kind())
	}
	return id, nil
}
