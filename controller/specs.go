package controller

import (
	"github.com/synapsenet/miner/internal/config"
	"github.com/synapsenet/miner/internal/hostspecs"
)

// ResolveSpecs detects the host's hardware specs and applies any operator
// overrides from the static specs file (spec §4.7: "a declared geolocation
// or a storage-quota override" take precedence over auto-detection).
func ResolveSpecs(dataDir string, static config.WorkerStaticSpecs) (hostspecs.Specs, error) {
	specs, err := hostspecs.Detect(static.Domain, static.Latitude, static.Longitude, dataDir)
	if err != nil {
		return specs, err
	}
	if static.StorageGB != nil {
		specs.StorageGB = *static.StorageGB
	}
	return specs, nil
}
