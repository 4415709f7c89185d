package dispatch

// Canonical commands are immutable uppercase tokens. Dispatching an exact
// member yields confidence 1.0 on stage 1.
var catalog = map[string]bool{
	"MAP":    true,
	"HELP":   true,
	"STATUS": true,
	"FIND":   true,
	"FILE":   true,
	"DRAW":   true,
	"SETUP":  true,
	"REBOOT": true,
	"PAIR":   true,
	"VAULT":  true,
}

// catalogSorted holds the canonical commands in alphabetical order for
// deterministic fuzzy-match tie-breaking.
var catalogSorted = func() []string {
	out := make([]string, 0, len(catalog))
	for c := range catalog {
		out = append(out, c)
	}
	// Insertion sort; the catalog is tiny and this runs once.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}()

// alias rewrites a legacy token to a canonical command, optionally injecting
// leading parameters to preserve the legacy intent.
type alias struct {
	target     string
	prefixArgs []string
}

// aliases maps legacy tokens to canonical commands.
var aliases = map[string]alias{
	"RESTART": {target: "REBOOT"},
	"SEARCH":  {target: "FIND"},
	"EDIT":    {target: "FILE", prefixArgs: []string{"edit"}},
	"LOCATE":  {target: "FIND"},
}

// resolveAlias applies the alias table to an uppercased token. Returns the
// canonical token and any injected leading parameters.
func resolveAlias(token string) (string, []string) {
	if a, ok := aliases[token]; ok {
		return a.target, a.prefixArgs
	}
	return token, nil
}
