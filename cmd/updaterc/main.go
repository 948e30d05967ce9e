// Command updaterc updates the RC file on a WebTiles account for a set of
// games across one or more servers.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/crawl-tools/webtiles/internal/updater"
	"github.com/crawl-tools/webtiles/pkg/webtiles"
)

// Known public servers, keyed by their usual short codes.
var knownServers = map[string]updater.Target{
	"cao":  {Name: "cao", URL: "ws://crawl.akrasiac.org:8080/socket", Version: webtiles.V1},
	"cbro": {Name: "cbro", URL: "ws://crawl.berotato.org:8080/socket", Version: webtiles.V1},
	"cjr":  {Name: "cjr", URL: "wss://crawl.jorgrun.rocks:8081/socket", Version: webtiles.V1},
	"cpo":  {Name: "cpo", URL: "wss://crawl.project357.org/socket", Version: webtiles.V2},
	"cue":  {Name: "cue", URL: "wss://underhound.eu:8080/socket", Version: webtiles.V1},
	"cwz":  {Name: "cwz", URL: "ws://webzook.net:8080/socket", Version: webtiles.V1},
	"cxc":  {Name: "cxc", URL: "ws://crawl.xtahua.com:8080/socket", Version: webtiles.V1},
	"lld":  {Name: "lld", URL: "ws://lazy-life.ddo.jp:8080/socket", Version: webtiles.V1},
}

// Raw server specs look like "ws://host/socket" or "v2+wss://host/socket".
var serverSpecPattern = regexp.MustCompile(`(?i)^(?:v([0-9]+)\+)?(wss?://.+)$`)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		rcFile   string
		username string
		password string
		games    string
		verbose  bool
	)

	codes := make([]string, 0, len(knownServers))
	for code := range knownServers {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	cmd := &cobra.Command{
		Use:   "updaterc <server|v<N>+url> [...]",
		Short: "Update RC files on a WebTiles account for a set of games and servers",
		Long: "Update RC files on a WebTiles account.\n\n" +
			"Each server is either a websocket URL (optionally prefixed with the\n" +
			"protocol version, e.g. v2+wss://host/socket) or one of the known\n" +
			"server codes: " + strings.Join(codes, ", ") + ".",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A .env next to the binary may carry WEBTILES_USERNAME and
			// WEBTILES_PASSWORD; absence is fine.
			_ = godotenv.Load()

			log, err := buildLogger(verbose)
			if err != nil {
				return err
			}
			defer log.Sync()

			targets, err := resolveTargets(args)
			if err != nil {
				return err
			}
			rcText, rcPath, err := readRCFile(rcFile)
			if err != nil {
				return err
			}
			log.Info("read rc file", zap.String("path", rcPath), zap.Int("bytes", len(rcText)))

			user, pass, err := resolveCredentials(username, password)
			if err != nil {
				return err
			}

			cfg := updater.Config{
				Username: user,
				Password: pass,
				Games:    strings.Split(games, ","),
				RCText:   rcText,
				Logger:   log,
			}
			log.Info("updating rc",
				zap.String("user", user),
				zap.Strings("games", cfg.Games),
				zap.Int("servers", len(targets)))

			if err := updater.Run(cmd.Context(), cfg, targets); err != nil {
				return err
			}
			log.Info("updates complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&rcFile, "rc-file", "f", "", "rc file to upload (default: ~/.crawl/init.txt or ~/.crawlrc)")
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username (or WEBTILES_USERNAME)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (or WEBTILES_PASSWORD)")
	cmd.Flags().StringVarP(&games, "games", "g", "trunk", "comma-separated games to update")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

func resolveTargets(args []string) ([]updater.Target, error) {
	targets := make([]updater.Target, 0, len(args))
	for _, arg := range args {
		if tgt, ok := knownServers[arg]; ok {
			targets = append(targets, tgt)
			continue
		}
		m := serverSpecPattern.FindStringSubmatch(arg)
		if m == nil {
			return nil, fmt.Errorf("unrecognized server: %s", arg)
		}
		version := webtiles.V1
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("bad protocol version in %s", arg)
			}
			version = webtiles.Version(n)
		}
		targets = append(targets, updater.Target{Name: m[2], URL: m[2], Version: version})
	}
	return targets, nil
}

func readRCFile(path string) (text, resolved string, err error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		for _, candidate := range []string{
			filepath.Join(home, ".crawl", "init.txt"),
			filepath.Join(home, ".crawlrc"),
		} {
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return "", "", fmt.Errorf("no crawl rc found and none given with -f")
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return string(data), path, nil
}

func resolveCredentials(username, password string) (string, string, error) {
	if username == "" {
		username = os.Getenv("WEBTILES_USERNAME")
	}
	if password == "" {
		password = os.Getenv("WEBTILES_PASSWORD")
	}

	in := bufio.NewReader(os.Stdin)
	for username == "" {
		fmt.Fprint(os.Stderr, "Crawl username: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		username = strings.TrimSpace(line)
	}
	for password == "" {
		fmt.Fprint(os.Stderr, "Crawl password: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", "", err
		}
		password = string(secret)
	}
	return username, password, nil
}
