// Package config reads the miner's environment-variable surface and the
// optional static worker-specs file. Dotenv loading itself is an external
// collaborator's job (cmd/miner calls godotenv.Load before this package ever
// runs) — everything here reads from os.Getenv, never from a file directly,
// except the TOML worker-specs file which has no environment-variable form.
package config

import (
	"os"

	"github.com/naoina/toml"
)

// Config is the environment-derived bootstrap configuration recognized at
// startup (spec §6, "Environment variables").
type Config struct {
	ParachainURL      string
	AccountSeed       string
	LogFilePath       string
	TaskFileName      string
	TaskDirPath       string
	IdentityFilePath  string
	TaskOwnerFilePath string
	StorageLocation   string

	// Optional ambient sinks; empty disables the feature.
	RedisAddr     string
	KafkaBrokers  []string

	Latitude  float64
	Longitude float64
}

const (
	defaultTaskFileName      = "task.json"
	defaultTaskDirPath       = "./task"
	defaultIdentityFilePath  = "./identity.json"
	defaultTaskOwnerFilePath = "./task_owner.json"
)

// Load builds a Config from environment variables and CLI-supplied
// overrides. parachainURLFlag and seedFlag come from the start-miner CLI
// flags; PARACHAIN_URL in the environment overrides the flag per spec §6.
func Load(parachainURLFlag, seedFlag string, lat, lon float64) Config {
	cfg := Config{
		ParachainURL:      parachainURLFlag,
		AccountSeed:       seedFlag,
		LogFilePath:       getenv("LOG_FILE_PATH", ""),
		TaskFileName:      getenv("TASK_FILE_NAME", defaultTaskFileName),
		TaskDirPath:       getenv("TASK_DIR_PATH", defaultTaskDirPath),
		IdentityFilePath:  getenv("IDENTITY_FILE_PATH", defaultIdentityFilePath),
		TaskOwnerFilePath: getenv("TASK_OWNER_FILE_PATH", defaultTaskOwnerFilePath),
		StorageLocation:   getenv("STORAGE_LOCATION", ""),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		Latitude:          lat,
		Longitude:         lon,
	}

	if override := os.Getenv("PARACHAIN_URL"); override != "" {
		cfg.ParachainURL = override
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// WorkerStaticSpecs is the optional TOML-sourced part of the registration
// specs (§4.7) that an operator may pin rather than let the host auto-detect
// (e.g. a declared geolocation or a storage-quota override).
type WorkerStaticSpecs struct {
	Domain    string  `toml:"domain"`
	Latitude  float64 `toml:"lat"`
	Longitude float64 `toml:"lon"`
	StorageGB *uint64 `toml:"storage_gb"`
}

// LoadWorkerStaticSpecs reads a TOML file if present; a missing file is not
// an error, it just means every field falls back to host auto-detection.
func LoadWorkerStaticSpecs(path string) (WorkerStaticSpecs, error) {
	var specs WorkerStaticSpecs
	if path == "" {
		return specs, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return specs, nil
	}
	if err != nil {
		return specs, err
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(&specs); err != nil {
		return specs, err
	}
	return specs, nil
}
