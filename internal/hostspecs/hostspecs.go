// Package hostspecs collects the advisory worker specs submitted once at
// registration time (spec §4.7): domain, lat/lon, ram, storage, cpu.
package hostspecs

import (
	"runtime"
	"syscall"

	"github.com/pbnjay/memory"
)

// Specs mirrors the fields the registration call submits on-chain.
type Specs struct {
	Domain    string
	Latitude  float64
	Longitude float64
	RAMBytes  uint64
	StorageGB uint64
	CPUCores  int
}

// Detect probes the host for RAM, CPU count, and free storage under dir.
// lat/lon/domain are supplied by the caller (CLI flags or a static specs
// file) since there is no reliable host-local source for geolocation.
func Detect(domain string, lat, lon float64, dir string) (Specs, error) {
	s := Specs{
		Domain:    domain,
		Latitude:  lat,
		Longitude: lon,
		RAMBytes:  memory.TotalMemory(),
		CPUCores:  runtime.NumCPU(),
	}

	free, err := freeStorageGB(dir)
	if err != nil {
		return s, err
	}
	s.StorageGB = free
	return s, nil
}

// freeStorageGB uses syscall.Statfs directly: none of the pack's third-party
// dependencies cover disk-free probing, so the standard library is the
// grounded choice here (see DESIGN.md).
func freeStorageGB(dir string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	return freeBytes / (1024 * 1024 * 1024), nil
}
