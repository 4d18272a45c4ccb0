package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	logx "homeworkbot/pkg/logx"
)

// Environment variables holding the three required secrets.
const (
	EnvPracticumToken = "PRACTICUM_TOKEN"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
)

// ErrMissingCredentials is returned when at least one secret is empty
// after every source has been consulted.
var ErrMissingCredentials = errors.New("required credentials are missing")

// Credentials are the secrets the watcher needs to run. Do not log them.
type Credentials struct {
	PracticumToken string
	TelegramToken  string
	ChatID         string
}

// Missing lists the environment variable names whose value is empty.
func (c Credentials) Missing() []string {
	var out []string
	for _, kv := range []struct{ name, val string }{
		{EnvPracticumToken, c.PracticumToken},
		{EnvTelegramToken, c.TelegramToken},
		{EnvTelegramChatID, c.ChatID},
	} {
		if strings.TrimSpace(kv.val) == "" {
			out = append(out, kv.name)
		}
	}
	return out
}

// CheckTokens reports whether all credentials are present. When some are
// not, it logs one critical line naming them.
func CheckTokens(c Credentials, log logx.Logger) bool {
	missing := c.Missing()
	if len(missing) == 0 {
		return true
	}
	log.Critical("required environment variables are missing", logx.Strings("missing", missing))
	return false
}

// SecretLookup returns the secret stored under name, or "" when there is
// none.
type SecretLookup func(name string) (string, error)

// LoadCredentials reads the secrets through getenv. fallback, when not
// nil, is consulted for values still empty; its failures are logged and
// treated as "not found". The result is not checked; see CheckTokens.
func LoadCredentials(getenv func(string) string, fallback SecretLookup, log logx.Logger) Credentials {
	if getenv == nil {
		getenv = os.Getenv
	}
	read := func(name string) string {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v
		}
		if fallback == nil {
			return ""
		}
		v, err := fallback(name)
		if err != nil {
			log.Warn("secret fallback lookup failed", logx.String("name", name), logx.Err(err))
			return ""
		}
		if v = strings.TrimSpace(v); v != "" {
			log.Debug("secret loaded from fallback", logx.String("name", name))
		}
		return v
	}
	return Credentials{
		PracticumToken: read(EnvPracticumToken),
		TelegramToken:  read(EnvTelegramToken),
		ChatID:         read(EnvTelegramChatID),
	}
}

// LoadDotEnv adds the variables from a dotenv file to the process
// environment. Variables that are already set are left alone. A missing
// file is not an error.
func LoadDotEnv(path string, log logx.Logger) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultEnvFile
	}
	err := godotenv.Load(path)
	switch {
	case err == nil:
		log.Debug("env file loaded", logx.String("path", path))
		return nil
	case errors.Is(err, fs.ErrNotExist):
		log.Debug("env file not found; skipping", logx.String("path", path))
		return nil
	default:
		return fmt.Errorf("load env file %s: %w", path, err)
	}
}
