package auth

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	serviceName  = "ocap"
	tokenAccount = "server-token"
	// TokenEnvVar holds a bearer token for model servers behind an
	// authenticating reverse proxy.
	TokenEnvVar = "OCAP_SERVER_TOKEN"
)

const (
	SourceKeychain = "Keychain"
	SourceEnv      = "Environment Variable"
)

// GetToken retrieves the server token. The keychain wins; the environment is
// consulted only when allowEnv is set. An empty token means "no auth".
func GetToken(allowEnv bool) (string, string) {
	if token, err := keyring.Get(serviceName, tokenAccount); err == nil && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), SourceKeychain
	}
	if allowEnv {
		if token, ok := GetEnvToken(); ok {
			return token, SourceEnv
		}
	}
	return "", ""
}

// SaveToken stores the server token in the OS keychain.
func SaveToken(token string) error {
	return keyring.Set(serviceName, tokenAccount, strings.TrimSpace(token))
}

// DeleteToken removes the server token from the OS keychain.
func DeleteToken() error {
	return keyring.Delete(serviceName, tokenAccount)
}

// HasToken reports whether a token is stored in the keychain.
func HasToken() bool {
	token, err := keyring.Get(serviceName, tokenAccount)
	return err == nil && token != ""
}

// GetEnvToken reads the token from the environment only.
func GetEnvToken() (string, bool) {
	token := strings.TrimSpace(os.Getenv(TokenEnvVar))
	if token == "" {
		return "", false
	}
	return token, true
}

// PromptForToken reads a token from the terminal without echo.
func PromptForToken(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(raw)), nil
}
