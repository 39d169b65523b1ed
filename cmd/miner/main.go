// Command miner is the entrypoint for a SynapseNet compute miner: it boots
// the chain gateway, transaction queue, artifact/engine/supervisor stack,
// and the event processor, then runs the finalized-block fan-out and
// liveness loops until terminated (spec §4.7, §4.8).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"

	"github.com/synapsenet/miner/chain"
	"github.com/synapsenet/miner/controller"
	"github.com/synapsenet/miner/eventproc"
	"github.com/synapsenet/miner/internal/blockingpool"
	"github.com/synapsenet/miner/internal/config"
	"github.com/synapsenet/miner/internal/identity"
	"github.com/synapsenet/miner/internal/journaldb"
	"github.com/synapsenet/miner/internal/minerlog"
	"github.com/synapsenet/miner/internal/state"
	"github.com/synapsenet/miner/supervisor"
	"github.com/synapsenet/miner/txqueue"
)

var app = cli.NewApp()

func init() {
	app.Name = "miner"
	app.Usage = "SynapseNet compute miner"
	app.Flags = appFlags
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	if envPath := cliCtx.String(envFileFlag.Name); envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "load env file")
		}
	}

	cfg := config.Load(cliCtx.String(parachainURLFlag.Name), cliCtx.String(accountSeedFlag.Name), cliCtx.Float64(latitudeFlag.Name), cliCtx.Float64(longitudeFlag.Name))
	if cfg.AccountSeed == "" {
		return errors.New("account seed is required (--account-seed or ACCOUNT_SEED)")
	}

	if err := minerlog.Init(cfg.LogFilePath); err != nil {
		return errors.Wrap(err, "init logger")
	}
	log := minerlog.Module("main")

	paths := state.NewPaths(cfg)
	if err := os.MkdirAll(paths.TaskDirPath, 0755); err != nil {
		return errors.Wrap(err, "create task directory")
	}

	kp, err := identity.DeriveKeypair(cfg.AccountSeed)
	if err != nil {
		return errors.Wrap(err, "derive keypair")
	}

	keyring, err := signature.KeyringPairFromSecret(cfg.AccountSeed, 42)
	if err != nil {
		return errors.Wrap(err, "derive signing keyring")
	}
	var ourAccount chain.AccountID
	copy(ourAccount[:], keyring.PublicKey)

	rec, err := identity.Load(paths.IdentityFilePath)
	if os.IsNotExist(err) {
		rec = &identity.Record{Owner: keyring.Address, Account: identity.AccountID(ourAccount)}
		if err := identity.Save(paths.IdentityFilePath, rec); err != nil {
			return errors.Wrap(err, "save identity file")
		}
	} else if err != nil {
		return errors.Wrap(err, "load identity file")
	}

	st := state.New(paths, kp, rec)

	gw, err := chain.Dial(cfg.ParachainURL)
	if err != nil {
		return errors.Wrap(err, "dial parachain")
	}
	st.Gateway = gw

	dbType := journaldb.LevelDB
	if cliCtx.String(dbTypeFlag.Name) == "badger" {
		dbType = journaldb.BadgerDB
	}
	journal, err := journaldb.New(dbType, paths.JournalDirPath)
	if err != nil {
		return errors.Wrap(err, "open journal database")
	}
	defer journal.Close()

	queue := txqueue.New(journal)
	st.Queue = queue

	pool, err := blockingpool.New(8)
	if err != nil {
		return errors.Wrap(err, "create blocking pool")
	}
	defer pool.Release()

	sup := supervisor.New()
	server := supervisor.NewServer(sup)

	telemetry, err := eventproc.NewTelemetry(cfg.KafkaBrokers, "")
	if err != nil {
		return errors.Wrap(err, "init telemetry")
	}
	defer telemetry.Close()

	ctrl, err := controller.New(st, gw, queue, cfg.AccountSeed)
	if err != nil {
		return errors.Wrap(err, "build controller")
	}

	staticSpecs, err := config.LoadWorkerStaticSpecs(cliCtx.String(workerSpecsFileFlag.Name))
	if err != nil {
		return errors.Wrap(err, "load worker specs file")
	}
	if staticSpecs.Domain == "" {
		staticSpecs.Domain = cliCtx.String(domainFlag.Name)
	}
	if staticSpecs.Latitude == 0 {
		staticSpecs.Latitude = cfg.Latitude
	}
	if staticSpecs.Longitude == 0 {
		staticSpecs.Longitude = cfg.Longitude
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	specs, err := controller.ResolveSpecs(paths.TaskDirPath, staticSpecs)
	if err != nil {
		return errors.Wrap(err, "resolve host specs")
	}
	if err := ctrl.Boot(ctx, specs); err != nil {
		return errors.Wrap(err, "boot controller")
	}

	workerID, err := gw.WorkerID(ctrl.PublicKey())
	if err != nil {
		return errors.Wrap(err, "resolve worker id")
	}
	rec.Worker = workerID
	if err := identity.Save(paths.IdentityFilePath, rec); err != nil {
		log.Warn("failed to persist resolved worker id", "err", err)
	}

	proc, err := eventproc.New(st, queue, gw, sup, telemetry, pool, ourAccount, workerID, cfg.AccountSeed)
	if err != nil {
		return errors.Wrap(err, "build event processor")
	}

	go ctrl.RunLiveness(ctx)

	listenAddr := cliCtx.String(listenAddrFlag.Name)
	httpServer := &http.Server{Addr: listenAddr, Handler: server.Router()}
	go func() {
		log.Info("inference supervisor listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("inference supervisor server stopped", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("miner boot complete, entering run loop", "account", rec.Owner, "worker_id", workerID)
	if err := ctrl.Run(ctx, proc); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "controller run loop")
	}

	_ = httpServer.Close()
	return nil
}
