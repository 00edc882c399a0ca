// Package names generates default display names for entities created
// without an explicit one.
package names

import (
	"fmt"
	"math/rand"
	"time"
)

var adjectives = []string{
	"amber", "astral", "breezy", "calm", "candid", "cobalt", "coral",
	"crimson", "dappled", "dusky", "ember", "fabled", "feral", "gilded",
	"hollow", "indigo", "ivory", "jade", "keen", "lucent", "lunar",
	"mellow", "misty", "nimble", "ochre", "opal", "pale", "quiet",
	"restless", "russet", "saffron", "sage", "silver", "slate", "solar",
	"sterling", "summer", "tidal", "umber", "velvet", "vernal", "violet",
	"wandering", "wild", "winter", "zephyr",
}

var figures = []string{
	"aria", "atlas", "aurora", "basil", "briar", "calla", "caspian",
	"cedar", "cleo", "dahlia", "echo", "ember", "fennel", "fern",
	"hazel", "idris", "iris", "juniper", "lark", "linden", "lotus",
	"lyra", "maren", "marlow", "nova", "orion", "quill", "reed",
	"rowan", "sable", "selene", "sorrel", "sparrow", "thistle", "vesper",
	"willow", "wren", "yarrow",
}

// Random returns a kebab-case adjective/figure combination.
func Random(rng *rand.Rand) string {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return fmt.Sprintf("%s-%s", adjectives[rng.Intn(len(adjectives))], figures[rng.Intn(len(figures))])
}

// Count returns the number of possible combinations.
func Count() int {
	return len(adjectives) * len(figures)
}
