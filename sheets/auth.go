package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// NewService builds an authenticated Sheets client. The client secret
// must exist up front; a stored token is reused and refreshed, and an
// interactive authorization flow runs when no usable token exists. Any
// freshly minted token is persisted back to tokenFile.
func NewService(ctx context.Context, credentialsFile, tokenFile string) (*gsheets.Service, error) {
	secret, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read client secret %s (download it from the Google Cloud console): %w", credentialsFile, err)
	}

	cfg, err := google.ConfigFromJSON(secret, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		tok, err = tokenFromWeb(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, tok); err != nil {
			slog.Warn("could not persist oauth token", slog.Any("error", err))
		}
	}

	src := &persistingTokenSource{
		path: tokenFile,
		src:  cfg.TokenSource(ctx, tok),
		last: tok,
	}

	svc, err := gsheets.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("build sheets client: %w", err)
	}
	return svc, nil
}

// persistingTokenSource writes refreshed tokens back to disk so the
// next process start does not need to re-authorize.
type persistingTokenSource struct {
	path string
	src  oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil || tok.AccessToken != p.last.AccessToken {
		p.last = tok
		if err := saveToken(p.path, tok); err != nil {
			slog.Warn("could not persist refreshed oauth token", slog.Any("error", err))
		}
	}
	return tok, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", path, err)
	}
	return tok, nil
}

// tokenFromWeb runs the interactive authorization flow: the operator
// opens the printed URL and pastes the resulting code back.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(os.Stderr, "Open the following link in your browser, then paste the authorization code:\n%v\n", authURL)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create token file %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return nil
}
