// Command guachaind is guachain's process entrypoint: load
// configuration, open the keystore and chain store, run check_chain on
// startup, and start the miner.
//
// Flag surface and bootstrap order are ported from the original
// implementation's main module; the CLI framework itself is grounded
// on a sibling example repo's use of urfave/cli/v2, since the teacher's
// own main.go wires dozens of gRPC microservices with no counterpart
// here.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/guachain/guachain/chain"
	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/config"
	"github.com/guachain/guachain/eventbus"
	"github.com/guachain/guachain/hashkey"
	"github.com/guachain/guachain/keystore"
	"github.com/guachain/guachain/miner"
	sqlstore "github.com/guachain/guachain/store/sql"
	"github.com/guachain/guachain/ulogger"
)

func main() {
	app := &cli.App{
		Name:  "guachaind",
		Usage: "a small proof-of-work DNS zone/domain chain node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "gis.toml", Usage: "path to the TOML configuration file"},
			&cli.StringFlag{Name: "dsn", Value: "sqlite://guachain.db", Usage: "store connection string"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}},
			&cli.BoolFlag{Name: "generate", Aliases: []string{"g"}, Usage: "mine a genesis zone block if the chain is empty"},
			&cli.StringFlag{Name: "bind", Usage: "override the DNS listener address (no-op in this module)"},
			&cli.BoolFlag{Name: "local", Aliases: []string{"l"}, Usage: "listen on 127.0.0.1 only (no-op in this module)"},
			&cli.BoolFlag{Name: "domains", Usage: "print the owned domains and exit"},
			&cli.BoolFlag{Name: "no-net", Aliases: []string{"n"}, Usage: "disable the peer network (no-op in this module)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := "info"
	if c.Bool("debug") {
		level = "debug"
	} else if c.Bool("verbose") {
		level = "info"
	}
	logger := ulogger.New("guachaind", level, true)

	settings, err := config.Load(c.String("config"))
	if err != nil {
		logger.Warnf("using default settings: %v", err)
		defaults := config.Defaults()
		settings = defaults
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ks, err := openKeystore(settings.KeyFile, logger)
	if err != nil {
		return err
	}

	st, err := sqlstore.New(ctx, logger, c.String("dsn"))
	if err != nil {
		return err
	}

	bus := eventbus.New()

	origin, err := settings.OriginBytes()
	if err != nil {
		return err
	}

	engine, err := chain.Open(ctx, logger, st, bus, ks, origin)
	if err != nil {
		return err
	}

	if err := engine.CheckChain(ctx, settings.CheckBlocks); err != nil {
		return err
	}

	if c.Bool("domains") {
		return printMyDomains(ctx, engine, ks)
	}

	m := miner.New(engine, ks, bus, logger, settings.Mining.Threads, settings.Mining.Lower)

	if c.Bool("generate") {
		if err := maybeMineGenesis(ctx, engine, ks, m, logger); err != nil {
			return err
		}
	}

	m.Start(ctx)

	logger.Infof("guachaind running, pub_key=%x", ks.GetPublic())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infof("shutting down")
	m.Stop()
	return engine.Close()
}

func openKeystore(keyFile string, logger ulogger.Logger) (keystore.Keystore, error) {
	ks, err := keystore.Load(keyFile)
	if err == nil {
		return ks, nil
	}

	logger.Warnf("no key file at %s, generating a new identity", keyFile)
	return keystore.Generate(keyFile)
}

// maybeMineGenesis enqueues a genesis zone-establishing payload block
// when the chain is empty, following the original's
// create_genesis_if_needed bootstrap step.
func maybeMineGenesis(ctx context.Context, engine *chain.Engine, ks keystore.Keystore, m *miner.Miner, logger ulogger.Logger) error {
	height, err := engine.Height(ctx)
	if err != nil {
		return err
	}
	if height > 0 {
		return nil
	}

	zone := chainmodel.ZonePayload{Name: "root", Difficulty: chainmodel.ZoneMinDifficulty, Yggdrasil: false}
	data, err := chainmodel.EncodeZonePayload(zone)
	if err != nil {
		return err
	}

	logger.Infof("chain is empty, enqueuing a genesis zone block for %q", zone.Name)

	m.EnqueuePayload(&chainmodel.Block{
		Index:      1,
		Version:    chainmodel.ChainVersion,
		Difficulty: chainmodel.ZoneDifficulty,
		Transaction: &chainmodel.Transaction{
			Class:    chainmodel.ClassZone,
			Identity: hashkey.Hash([]byte(zone.Name)),
			Data:     data,
			PubKey:   ks.GetPublic(),
		},
	})

	return nil
}

func printMyDomains(ctx context.Context, engine *chain.Engine, ks keystore.Keystore) error {
	domains, err := engine.GetMyDomains(ctx, ks.GetPublic())
	if err != nil {
		return err
	}

	for _, d := range domains {
		label := d.Label
		if label == "" {
			label = "<unrecovered>"
		}
		fmt.Printf("%s.%s\n", label, d.Payload.Zone)
	}

	return nil
}
