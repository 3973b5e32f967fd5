// Package googleauth builds the authorized HTTP client shared by the Gmail
// and Sheets adapters.
//
// Credential acquisition is deliberately out of band: this package only
// consumes a client secret file and a previously provisioned token cache.
// When either is missing or the token no longer refreshes, the run fails
// with instructions instead of prompting.
package googleauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// Client returns an OAuth-backed HTTP client with read-only Gmail scope and
// Sheets write scope.
func Client(ctx context.Context, credentialsPath, tokenPath string) (*http.Client, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credentialsPath, err)
	}

	cfg, err := google.ConfigFromJSON(b,
		gmailv1.GmailReadonlyScope,
		sheetsv4.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	tok, err := readToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read token at %s (provision it with your oauth tooling first): %w", tokenPath, err)
	}

	return cfg.Client(ctx, tok), nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}
