package analyze

import lal "github.com/TimZoet/logandload-module"

// standardCatalog returns the analyzer's default parameter-type catalog,
// matching the Analyzer() constructor in the original implementation,
// which pre-registers the standard integer, floating-point, and byte sizes
// before anything else is read. This is the only default catalog provided
// (per spec scope): callers needing custom parameter types must register
// them explicitly via Analyzer.RegisterParameter.
func standardCatalog() map[lal.ParameterKey]uint32 {
	sizes := lal.StandardParameterSizes()
	c := make(map[lal.ParameterKey]uint32, len(sizes))
	for k, sz := range sizes {
		c[k] = sz
	}
	return c
}
