package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/streampump/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// dialectEnvVars maps dialect tags to the environment variable their vendor
// conventionally reads the API key from.
var dialectEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// Manager manages reading and writing credentials.toml in the .streampump/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .streampump/ directory; otherwise the standard dotdir resolution applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:  currentVersion,
				Dialects: make(map[string]DialectCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Dialects == nil {
		creds.Dialects = make(map[string]DialectCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for the given dialect.
func (m *Manager) SetKey(dialect, key string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Dialects[dialect] = DialectCredential{APIKey: key}

	return m.Save(creds)
}

// GetKey returns the stored API key for the given dialect.
// Returns an empty string if no key is stored.
func (m *Manager) GetKey(dialect string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Dialects[dialect].APIKey, nil
}

// ResolveKey returns the API key for a dialect, preferring the vendor's
// environment variable over the stored credential.
func (m *Manager) ResolveKey(dialect string) (string, error) {
	if envVar := EnvVarForDialect(dialect); envVar != "" {
		if key := os.Getenv(envVar); key != "" {
			return key, nil
		}
	}

	return m.GetKey(dialect)
}

// RemoveKey deletes the stored credential for a dialect.
func (m *Manager) RemoveKey(dialect string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Dialects, dialect)

	return m.Save(creds)
}

// ListDialects returns the tags of dialects that have stored credentials.
func (m *Manager) ListDialects() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	dialects := make([]string, 0, len(creds.Dialects))
	for name := range creds.Dialects {
		dialects = append(dialects, name)
	}

	sort.Strings(dialects)

	return dialects, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// EnvVarForDialect returns the environment variable name for a given dialect.
// Returns an empty string for dialects that take no key.
func EnvVarForDialect(dialect string) string {
	return dialectEnvVars[dialect]
}

// SupportedDialects returns the dialects that require API keys.
func SupportedDialects() []string {
	return []string{"anthropic", "gemini", "openai"}
}

// IsSupportedDialect returns true if the given dialect takes an API key.
func IsSupportedDialect(dialect string) bool {
	return slices.Contains(SupportedDialects(), dialect)
}
