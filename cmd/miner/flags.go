package main

import "gopkg.in/urfave/cli.v1"

var (
	parachainURLFlag = cli.StringFlag{
		Name:  "parachain-url",
		Usage: "WebSocket URL of the parachain RPC endpoint",
		Value: "ws://127.0.0.1:9944",
	}
	accountSeedFlag = cli.StringFlag{
		Name:   "account-seed",
		Usage:  "Operator account seed used to derive this miner's identity (required)",
		EnvVar: "ACCOUNT_SEED",
	}
	domainFlag = cli.StringFlag{
		Name:  "domain",
		Usage: "Advisory domain/region label submitted at registration",
	}
	latitudeFlag = cli.Float64Flag{
		Name:  "lat",
		Usage: "Advisory latitude submitted at registration",
	}
	longitudeFlag = cli.Float64Flag{
		Name:  "lon",
		Usage: "Advisory longitude submitted at registration",
	}
	workerSpecsFileFlag = cli.StringFlag{
		Name:  "worker-specs-file",
		Usage: "Optional TOML file overriding auto-detected host specs",
	}
	listenAddrFlag = cli.StringFlag{
		Name:  "listen-addr",
		Usage: "Address the inference-supervisor HTTP/WS server binds to",
		Value: "127.0.0.1:7700",
	}
	dbTypeFlag = cli.StringFlag{
		Name:  "journal-db",
		Usage: "Transaction-queue journal backend: badger or leveldb",
		Value: "badger",
	}
	envFileFlag = cli.StringFlag{
		Name:  "env-file",
		Usage: "Optional .env file loaded before flags/environment are read",
		Value: ".env",
	}
)

var appFlags = []cli.Flag{
	parachainURLFlag,
	accountSeedFlag,
	domainFlag,
	latitudeFlag,
	longitudeFlag,
	workerSpecsFileFlag,
	listenAddrFlag,
	dbTypeFlag,
	envFileFlag,
}
