// Package auth obtains OAuth2 authorized HTTP clients for Google APIs.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ScopeFCM grants access to the Firebase Cloud Messaging send API.
const ScopeFCM = "https://www.googleapis.com/auth/firebase.messaging"

// Authorizer returns an HTTP client that attaches access tokens for scopes.
type Authorizer interface {
	Authorize(ctx context.Context, scopes ...string) (*http.Client, error)
}

// GoogleAuthorizer uses a service account file when one is configured and
// Application Default Credentials otherwise.
type GoogleAuthorizer struct {
	credentialsFile string
}

func NewGoogleAuthorizer(credentialsFile string) *GoogleAuthorizer {
	return &GoogleAuthorizer{credentialsFile: credentialsFile}
}

// Authorize builds the client. ctx is kept for token refreshes and must
// outlive the client.
func (a *GoogleAuthorizer) Authorize(ctx context.Context, scopes ...string) (*http.Client, error) {
	if a.credentialsFile == "" {
		client, err := google.DefaultClient(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("default google credentials: %w", err)
		}
		return client, nil
	}

	data, err := os.ReadFile(a.credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}
