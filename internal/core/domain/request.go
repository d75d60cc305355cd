package domain

// BuildRequest is the unit of work submitted to the engine: a
// configuration plus an ordered target list. The target list is
// order-significant and may repeat names; a repeated name is served from
// the results cache rather than rebuilt.
type BuildRequest struct {
	// Identity selects the configuration when ConfigurationID is zero;
	// the engine resolves it through the configuration cache.
	Identity ConfigurationIdentity

	// ConfigurationID short-circuits identity resolution when the caller
	// already holds a resolved configuration (child requests do).
	ConfigurationID ConfigurationID

	// Targets to build, in order. Empty means the configuration's entry
	// targets.
	Targets []string

	// Ancestry holds the configuration fingerprints of the requests this
	// one descends from, outermost first. Child requests carry it so a
	// configuration that references itself through any chain is rejected
	// as a definition error rather than resubmitted without bound.
	Ancestry []uint64
}
