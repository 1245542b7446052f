// Package games resolves built-in game models by name.
package games

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lox/cfrsolve/sdk/game"
	"github.com/lox/cfrsolve/sdk/games/kuhn"
	"github.com/lox/cfrsolve/sdk/games/leduc"
	"github.com/lox/cfrsolve/sdk/games/matrix"
)

var fixed = map[string]func() game.Game{
	"leduc":            func() game.Game { return leduc.New() },
	"matching-pennies": func() game.Game { return matrix.MatchingPennies() },
	"rps":              func() game.Game { return matrix.RockPaperScissors() },
}

// New returns the game registered under name. Kuhn poker accepts a player
// count suffix, e.g. "kuhn-3p"; plain "kuhn" is the two-player game.
func New(name string) (game.Game, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if ctor, ok := fixed[name]; ok {
		return ctor(), nil
	}
	if name == "kuhn" {
		return newKuhn(2)
	}
	if rest, ok := strings.CutPrefix(name, "kuhn-"); ok {
		n, err := strconv.Atoi(strings.TrimSuffix(rest, "p"))
		if err != nil {
			return nil, fmt.Errorf("invalid kuhn player count in %q", name)
		}
		return newKuhn(n)
	}
	return nil, fmt.Errorf("unknown game %q (known: %s)", name, strings.Join(Names(), ", "))
}

func newKuhn(players int) (game.Game, error) {
	g, err := kuhn.New(players)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Names lists the registered game names.
func Names() []string {
	names := []string{"kuhn", "kuhn-<n>p"}
	for name := range fixed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
