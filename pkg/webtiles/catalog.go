package webtiles

import "regexp"

// GameCatalog maps a game's display name (e.g. "DCSS trunk") to the game
// type id used when watching or setting an RC file. Servers resend the
// whole catalog on change, so it is always replaced wholesale, never
// merged.
type GameCatalog map[string]string

// v1 servers deliver the catalog as an HTML fragment of play links.
var gameLinkPattern = regexp.MustCompile(`<a href="#play-([^"]+)">([^>]+)</a>`)

func parseGameLinks(content string) GameCatalog {
	games := GameCatalog{}
	for _, m := range gameLinkPattern.FindAllStringSubmatch(content, -1) {
		games[m[2]] = m[1]
	}
	return games
}
