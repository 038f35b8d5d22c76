package auth

import (
	"errors"
	"os"
)

// Credentials hold the account login pair. The value is read once at
// startup and never mutated for the lifetime of a crawl.
type Credentials struct {
	Email    string
	Password string
}

// CredentialsFromEnv reads STRIDE_EMAIL and STRIDE_PASSWORD.
func CredentialsFromEnv() (Credentials, error) {
	c := Credentials{
		Email:    os.Getenv("STRIDE_EMAIL"),
		Password: os.Getenv("STRIDE_PASSWORD"),
	}
	return c, c.Validate()
}

// Validate reports whether both halves of the pair are present.
func (c Credentials) Validate() error {
	if c.Email == "" || c.Password == "" {
		return errors.New("auth: email and password are required")
	}
	return nil
}
