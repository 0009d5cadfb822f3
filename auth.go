package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/copy-go/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an API access token",
		Long: `Save an API access token for later commands. The token is read from the
first line of stdin so it never appears in the process list:

  copy-go login < token.txt`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Duration("expires-in", 0, "token lifetime, if known (e.g. 720h)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved access token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	expiresIn, _ := cmd.Flags().GetDuration("expires-in") //nolint:errcheck // flag registered above
	logger := buildLogger()

	access, err := readToken(cmd.InOrStdin())
	if err != nil {
		return err
	}

	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if expiresIn > 0 {
		tok.Expiry = time.Now().Add(expiresIn)
	}

	path := resolvedCfg.API.TokenFile
	if err := tokenfile.Save(path, &tokenfile.File{Token: tok, APIHost: resolvedCfg.API.Host}); err != nil {
		return err
	}

	logger.Info("token saved", "path", path, "api_host", resolvedCfg.API.Host)
	statusf("Token saved to %s\n", path)

	return nil
}

// readToken returns the first non-empty line of r.
func readToken(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}

	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}

	return "", errors.New("no token on stdin")
}

func runLogout(_ *cobra.Command, _ []string) error {
	path := resolvedCfg.API.TokenFile

	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		statusf("Not logged in.\n")
		return nil
	}

	if err != nil {
		return fmt.Errorf("removing token: %w", err)
	}

	buildLogger().Info("token removed", "path", path)
	statusf("Logged out.\n")

	return nil
}
