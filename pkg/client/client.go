// Package client builds the OAuth2-authenticated HTTP client used for the
// Gmail API.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenFile is where the OAuth token is cached between runs.
const TokenFile = "data/token.json"

const (
	callbackPort = 8085
	callbackPath = "/callback"
	flowTimeout  = 5 * time.Minute
)

// New creates an authenticated HTTP client from a client-secret file. A
// cached token is reused when present; otherwise the interactive flow runs
// and the token is cached for the next run.
func New(secretFilePath string, scope ...string) (*http.Client, error) {
	b, err := os.ReadFile(secretFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, scope...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}

	tok, err := tokenFromFile(TokenFile)
	if err != nil {
		slog.Info("no cached token, starting OAuth flow")
		tok, err = tokenFromWeb(config)
		if err != nil {
			return nil, fmt.Errorf("oauth flow: %w", err)
		}
		if err := saveToken(TokenFile, tok); err != nil {
			slog.Error("failed to cache token", "error", err)
		}
	}

	return config.Client(context.Background(), tok), nil
}

// tokenFromWeb runs the browser consent flow with a local callback server.
func tokenFromWeb(config *oauth2.Config) (*oauth2.Token, error) {
	config.RedirectURL = fmt.Sprintf("http://localhost:%d%s", callbackPort, callbackPath)

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- fmt.Errorf("state mismatch in oauth callback")
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			errChan <- fmt.Errorf("oauth error: %s", errMsg)
			http.Error(w, errMsg, http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code in callback")
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authentication successful. You can close this window.")
		codeChan <- code
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", callbackPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", callbackPort, err)
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("Visit this URL to authorize the application:\n%s\n", authURL)

	select {
	case code := <-codeChan:
		return config.Exchange(context.Background(), code)
	case err := <-errChan:
		return nil, err
	case <-time.After(flowTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", flowTimeout)
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	return tok, json.NewDecoder(f).Decode(tok)
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}
