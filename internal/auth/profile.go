package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/PaceOps/stride/internal/extract"
	"golang.org/x/sync/errgroup"
)

// NicknameFromProfile fetches an athlete profile page and returns the
// nickname from its title. A profile that does not exist (404, or a page
// without a profile title) yields extract.ErrNicknameNotFound rather
// than an error the caller has to pattern-match.
func (s *Session) NicknameFromProfile(ctx context.Context, profileURL string) (string, error) {
	resp, err := s.Execute(ctx, profileURL)
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", extract.ErrNicknameNotFound, profileURL)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("auth: profile fetch %s: status %d", profileURL, resp.StatusCode)
	}

	return extract.Nickname(resp.Body)
}

// Nicknames resolves many profile URLs with bounded concurrency on the
// shared session. Unresolvable profiles leave an empty slot instead of
// failing the batch.
func (s *Session) Nicknames(ctx context.Context, profileURLs []string) ([]string, error) {
	out := make([]string, len(profileURLs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, u := range profileURLs {
		g.Go(func() error {
			nick, err := s.NicknameFromProfile(ctx, u)
			if err != nil {
				if errors.Is(err, extract.ErrNicknameNotFound) {
					return nil
				}
				return err
			}
			out[i] = nick
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
