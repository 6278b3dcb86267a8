package executor

import (
	"sort"

	"webqa/internal/types"
)

// ResolveBatches splits configurations into execution batches: tests without
// dependencies first, chunked to the concurrency limit, then dependent tests
// likewise. Dependent batches run strictly after independent ones; within a
// batch order carries no meaning. Order inside each group follows test id so
// scheduling is deterministic.
func ResolveBatches(configs []*types.TestConfiguration, chunkSize int) [][]*types.TestConfiguration {
	if chunkSize <= 0 {
		chunkSize = 1
	}

	var independent, dependent []*types.TestConfiguration
	for _, cfg := range configs {
		if len(cfg.Dependencies) == 0 {
			independent = append(independent, cfg)
		} else {
			dependent = append(dependent, cfg)
		}
	}
	sortByID(independent)
	sortByID(dependent)

	var batches [][]*types.TestConfiguration
	batches = append(batches, chunk(independent, chunkSize)...)
	batches = append(batches, chunk(dependent, chunkSize)...)
	return batches
}

func sortByID(configs []*types.TestConfiguration) {
	sort.Slice(configs, func(i, j int) bool { return configs[i].TestID < configs[j].TestID })
}

func chunk(configs []*types.TestConfiguration, size int) [][]*types.TestConfiguration {
	var out [][]*types.TestConfiguration
	for len(configs) > 0 {
		n := size
		if len(configs) < n {
			n = len(configs)
		}
		out = append(out, configs[:n])
		configs = configs[n:]
	}
	return out
}
