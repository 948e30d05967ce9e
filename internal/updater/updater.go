// Package updater pushes a local RC file to a set of WebTiles servers:
// connect, log in, wait for the game catalog, match the requested games
// against it, set_rc each match, disconnect.
package updater

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crawl-tools/webtiles/pkg/protocol"
	"github.com/crawl-tools/webtiles/pkg/webtiles"
)

// ErrLoginFailed reports a rejected login. The dispatcher leaves the
// login_fail message unhandled on purpose; the updater is the caller that
// turns it into an error.
var ErrLoginFailed = errors.New("updater: login failed")

// Target is one server to update.
type Target struct {
	Name    string // short code or hostname, used in logs and errors
	URL     string
	Version webtiles.Version
}

type Config struct {
	Username string
	Password string
	Games    []string // short names, matched as (?i)DCSS.*<name>
	RCText   string
	Logger   *zap.Logger
}

// Run updates every target. Targets run concurrently on independent
// connections; one server failing or hanging never stops the others. The
// returned error is the first failure, after all targets have finished.
func Run(ctx context.Context, cfg Config, targets []Target) error {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var g errgroup.Group
	for _, tgt := range targets {
		tgt := tgt
		g.Go(func() error {
			log := cfg.Logger.With(zap.String("server", tgt.Name))
			log.Info("updating server")
			if err := updateOne(ctx, cfg, tgt, log); err != nil {
				log.Error("update failed", zap.Error(err))
				return err
			}
			log.Info("update complete")
			return nil
		})
	}
	return g.Wait()
}

func updateOne(ctx context.Context, cfg Config, tgt Target, log *zap.Logger) error {
	conn := webtiles.New(webtiles.Config{Logger: log})
	creds := &webtiles.Credentials{Username: cfg.Username, Password: cfg.Password}
	if err := conn.Connect(ctx, tgt.URL, creds, tgt.Version); err != nil {
		return fmt.Errorf("%s: %w", tgt.Name, err)
	}
	defer conn.Disconnect()

	for {
		msgs, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("%s: read: %w", tgt.Name, err)
		}
		for _, m := range msgs {
			handled, err := conn.Handle(ctx, m)
			if err != nil {
				return fmt.Errorf("%s: %w", tgt.Name, err)
			}
			if !handled && m.Type == protocol.MsgLoginFail {
				return fmt.Errorf("%s: %w", tgt.Name, ErrLoginFailed)
			}
		}

		// The catalog only arrives after login; keep pumping until then.
		games := conn.Games()
		if len(games) == 0 {
			continue
		}

		ids, err := MatchGames(games, cfg.Games)
		if err != nil {
			return fmt.Errorf("%s: %w", tgt.Name, err)
		}
		for _, game := range cfg.Games {
			if err := conn.UpdateRC(ctx, ids[game], cfg.RCText); err != nil {
				return fmt.Errorf("%s: set rc for %s: %w", tgt.Name, game, err)
			}
			log.Info("rc updated", zap.String("game", game), zap.String("game_id", ids[game]))
		}
		return nil
	}
}

// MatchGames resolves each short game name to a game id, matching catalog
// display names case-insensitively against DCSS.*<name>. Catalog names are
// tried in sorted order so the match is deterministic.
func MatchGames(catalog webtiles.GameCatalog, games []string) (map[string]string, error) {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	ids := make(map[string]string, len(games))
	for _, game := range games {
		pattern, err := regexp.Compile(`(?i)DCSS.*` + regexp.QuoteMeta(game))
		if err != nil {
			return nil, fmt.Errorf("bad game name %q: %w", game, err)
		}
		found := false
		for _, name := range names {
			if pattern.MatchString(name) {
				ids[game] = catalog[name]
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("game %q not found on server", game)
		}
	}
	return ids, nil
}
