package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const (
	bigQueryScope = "https://www.googleapis.com/auth/bigquery"
	storageScope  = "https://www.googleapis.com/auth/devstorage.read_write"
)

type GoogleAuthenticationFlags struct {
	TokenFileLocation string
	// location of a credential file described by https://cloud.google.com/docs/authentication/production
	GoogleServiceAccountCredentialFile string
	GoogleOAuthClientCredentialFile    string
}

func NewGoogleAuthenticationFlags() *GoogleAuthenticationFlags {
	tokenDir := os.Getenv("HOME")
	if len(tokenDir) == 0 {
		tokenDir = "./"
	}
	return &GoogleAuthenticationFlags{
		TokenFileLocation: filepath.Join(tokenDir, ".cromwell-monitor-token.json"),
	}
}

func (f *GoogleAuthenticationFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.GoogleServiceAccountCredentialFile, "google-service-account-credential-file", f.GoogleServiceAccountCredentialFile, "location of a credential file described by https://cloud.google.com/docs/authentication/production")
	fs.StringVar(&f.GoogleOAuthClientCredentialFile, "google-oauth-credential-file", f.GoogleOAuthClientCredentialFile, "location of an OAuth client credential file for end-user authentication")
	fs.StringVar(&f.TokenFileLocation, "google-token-file", f.TokenFileLocation, "where the OAuth token obtained with --google-oauth-credential-file is cached")
}

func (f *GoogleAuthenticationFlags) Validate() error {
	if len(f.GoogleServiceAccountCredentialFile) == 0 && len(f.GoogleOAuthClientCredentialFile) == 0 {
		return fmt.Errorf("one of --google-service-account-credential-file or --google-oauth-credential-file must be specified")
	}
	return nil
}

func (f *GoogleAuthenticationFlags) clientOptions(ctx context.Context, scopes ...string) ([]option.ClientOption, error) {
	if len(f.GoogleServiceAccountCredentialFile) > 0 {
		return []option.ClientOption{option.WithCredentialsFile(f.GoogleServiceAccountCredentialFile)}, nil
	}

	raw, err := os.ReadFile(f.GoogleOAuthClientCredentialFile)
	if err != nil {
		return nil, fmt.Errorf("could not read OAuth client credentials: %w", err)
	}
	// Changing the scopes requires deleting the cached token.
	config, err := google.ConfigFromJSON(raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("could not parse OAuth client credentials: %w", err)
	}
	token, err := f.token(ctx, config)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(config.TokenSource(ctx, token))}, nil
}

func (f *GoogleAuthenticationFlags) NewBigQueryClient(ctx context.Context, projectID string) (*bigquery.Client, error) {
	opts, err := f.clientOptions(ctx, bigQueryScope, storageScope)
	if err != nil {
		return nil, err
	}
	return bigquery.NewClient(ctx, projectID, opts...)
}

func (f *GoogleAuthenticationFlags) NewGCSClient(ctx context.Context) (*storage.Client, error) {
	opts, err := f.clientOptions(ctx, bigQueryScope, storageScope)
	if err != nil {
		return nil, err
	}
	return storage.NewClient(ctx, opts...)
}

// token reads the cached token, or asks the user to authorize access in a
// browser and caches the token they obtain.
func (f *GoogleAuthenticationFlags) token(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	cache := tokenCache{path: f.TokenFileLocation}
	if token, err := cache.load(); err == nil {
		return token, nil
	}
	token, err := exchange(ctx, config, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	if err := cache.store(token); err != nil {
		logrus.WithError(err).Warn("Could not cache OAuth token.")
	}
	return token, nil
}

func exchange(ctx context.Context, config *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	if _, err := fmt.Fprintf(out, "Authorize access to BigQuery at the following link, then enter the authorization code:\n%s\n", authURL); err != nil {
		return nil, err
	}
	var code string
	if _, err := fmt.Fscan(in, &code); err != nil {
		return nil, fmt.Errorf("could not read authorization code: %w", err)
	}
	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("could not exchange authorization code for a token: %w", err)
	}
	return token, nil
}

// tokenCache keeps an OAuth token in a file only the user can read.
type tokenCache struct {
	path string
}

func (c tokenCache) load() (*oauth2.Token, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(raw, token); err != nil {
		return nil, fmt.Errorf("could not parse cached token %s: %w", c.path, err)
	}
	return token, nil
}

func (c tokenCache) store(token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}
	logrus.Debugf("Caching OAuth token in %s.", c.path)
	return os.WriteFile(c.path, raw, 0600)
}
