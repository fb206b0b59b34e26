package multiplier

// builtinThresholds is the compile-time factor -> win-threshold table from
// the original implementation's multiplier table (original_source's
// multiplier.rs), carried verbatim since spec §3/§9 treats thresholds as
// opaque registry data and mandates no formula for deriving them.
var builtinThresholds = map[string]uint16{
	"1.05": 60541,
	"1.1":  57789,
	"1.33": 47796,
	"1.5":  42379,
	"2":    31784,
	"3":    21189,
	"10":   6356,
	"25":   2542,
	"50":   1271,
	"100":  635,
	"1000": 64,
}

// thresholdForToken looks up the win threshold for a factor's dot-form
// token (the multiplier file's "name" field with "_" already substituted
// to "."), matching the lookup before any decimal normalization can alter
// the string's shape.
func thresholdForToken(token string) (uint16, bool) {
	t, ok := builtinThresholds[token]
	return t, ok
}
