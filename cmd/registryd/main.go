package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/builtbymom/tokenregistry/cmd/flags"
	"github.com/builtbymom/tokenregistry/crosschain"
	"github.com/builtbymom/tokenregistry/events"
	"github.com/builtbymom/tokenregistry/httpserver"
	"github.com/builtbymom/tokenregistry/interfaces"
	"github.com/builtbymom/tokenregistry/mailbox"
	"github.com/builtbymom/tokenregistry/storage"
	"github.com/builtbymom/tokenregistry/tokenlist"
	"github.com/builtbymom/tokenregistry/tokentroller"
)

var leafEndpointFlag = &cli.StringSliceFlag{
	Name:  "leaf",
	Usage: "leaf endpoint as domain=url (repeatable), e.g. 10=http://leaf-10:8080",
}

var rootDomainFlag = &cli.UintFlag{
	Name:  "root-domain",
	Value: 1,
	Usage: "domain id of the root chain",
}

var rootAddressFlag = &cli.StringFlag{
	Name:     "root-address",
	Usage:    "root agent controller address, 0x-prefixed hex",
	Required: true,
}

var gasPriceFlag = &cli.Uint64Flag{
	Name:  "gas-price",
	Value: 1,
	Usage: "local per-gas price quoted to the root, in wei",
}

var leafDomainsFlag = &cli.UintSliceFlag{
	Name:  "leaf-domain",
	Usage: "leaf domain id to simulate (repeatable)",
}

func main() {
	app := &cli.App{
		Name:  "registryd",
		Usage: "Permissioned token registry node",
		Commands: []*cli.Command{
			rootCommand(),
			leafCommand(),
			simCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "root",
		Usage: "Run the root-chain registry node",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag, flags.OwnerFlag, flags.DomainFlag,
			flags.StorageFlag, flags.TokenListNameFlag, leafEndpointFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			owner, err := parseAddr(cCtx.String(flags.OwnerFlag.Name))
			if err != nil {
				return err
			}
			domain := uint32(cCtx.Uint(flags.DomainFlag.Name))

			recorder := events.NewRecorder()
			sink := events.Multi(events.NewSlogSink(logger), recorder)

			ctrl := tokentroller.New(&tokentroller.Config{
				Owner:  owner,
				Domain: domain,
				Log:    logger,
				Events: sink,
			})

			relay := mailbox.NewHTTPMailbox(domain, ctrl.Address(), logger)
			for _, raw := range cCtx.StringSlice(leafEndpointFlag.Name) {
				leafDomain, url, err := parseLeafEndpoint(raw)
				if err != nil {
					return err
				}
				relay.SetEndpoint(leafDomain, url)
			}

			root := crosschain.NewRootAgent(ctrl, relay, crosschain.NewCommandTable(), logger, sink)

			builder, publisher, err := setupSnapshots(cCtx, logger, domain, ctrl)
			if err != nil {
				return err
			}

			handler := httpserver.NewHandler(httpserver.HandlerConfig{
				Log:        logger,
				Controller: ctrl,
				RootAgent:  root,
				Recorder:   recorder,
				Builder:    builder,
				Publisher:  publisher,
			})
			return runServer(cCtx, logger, handler)
		},
	}
}

func leafCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaf",
		Usage: "Run a leaf-chain registry node",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag, flags.OwnerFlag, flags.DomainFlag,
			flags.StorageFlag, flags.TokenListNameFlag,
			rootDomainFlag, rootAddressFlag, gasPriceFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			owner, err := parseAddr(cCtx.String(flags.OwnerFlag.Name))
			if err != nil {
				return err
			}
			rootAddr, err := parseAddr(cCtx.String(rootAddressFlag.Name))
			if err != nil {
				return err
			}
			domain := uint32(cCtx.Uint(flags.DomainFlag.Name))
			rootDomain := uint32(cCtx.Uint(rootDomainFlag.Name))

			recorder := events.NewRecorder()
			sink := events.Multi(events.NewSlogSink(logger), recorder)

			ctrl := tokentroller.NewLeaf(&tokentroller.Config{
				Owner:  owner,
				Domain: domain,
				Log:    logger,
				Events: sink,
			})

			mailboxAddr := mailbox.DeriveMailboxAddress(domain)
			leaf := crosschain.NewLeafAgent(ctrl, mailboxAddr, rootDomain, rootAddr, logger, sink)

			builder, publisher, err := setupSnapshots(cCtx, logger, domain, ctrl)
			if err != nil {
				return err
			}

			handler := httpserver.NewHandler(httpserver.HandlerConfig{
				Log:         logger,
				Controller:  ctrl,
				LeafAgent:   leaf,
				MailboxAddr: mailboxAddr,
				GasPrice:    new(big.Int).SetUint64(cCtx.Uint64(gasPriceFlag.Name)),
				Recorder:    recorder,
				Builder:     builder,
				Publisher:   publisher,
			})
			return runServer(cCtx, logger, handler)
		},
	}
}

// simCommand runs a root and several leaves in one process over the
// in-memory mailbox fabric, for local development and demos.
func simCommand() *cli.Command {
	return &cli.Command{
		Name:  "sim",
		Usage: "Run a root and leaves in one process over an in-memory mailbox",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag, flags.OwnerFlag, flags.DomainFlag,
			flags.StorageFlag, flags.TokenListNameFlag, leafDomainsFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			owner, err := parseAddr(cCtx.String(flags.OwnerFlag.Name))
			if err != nil {
				return err
			}
			rootDomain := uint32(cCtx.Uint(flags.DomainFlag.Name))

			recorder := events.NewRecorder()
			sink := events.Multi(events.NewSlogSink(logger), recorder)

			network := mailbox.NewNetwork(logger)
			rootMailbox := network.Join(rootDomain)

			rootCtrl := tokentroller.New(&tokentroller.Config{
				Owner:  owner,
				Domain: rootDomain,
				Log:    logger,
				Events: sink,
			})
			root := crosschain.NewRootAgent(rootCtrl, rootMailbox.Dispatcher(rootCtrl.Address()), crosschain.NewCommandTable(), logger, sink)

			ctx := context.Background()
			for _, rawDomain := range cCtx.UintSlice(leafDomainsFlag.Name) {
				leafDomain := uint32(rawDomain)
				leafMailbox := network.Join(leafDomain)

				leafCtrl := tokentroller.NewLeaf(&tokentroller.Config{
					Owner:  owner,
					Domain: leafDomain,
					Log:    logger,
					Events: sink,
				})
				leaf := crosschain.NewLeafAgent(leafCtrl, leafMailbox.Address(), rootDomain, rootCtrl.Address(), logger, sink)
				leafMailbox.RegisterRecipient(leafCtrl.Address(), leaf)

				if err := root.RegisterLeaf(ctx, owner, leafDomain, leafCtrl.Address()); err != nil {
					return err
				}
			}

			flushCtx, stopFlush := context.WithCancel(ctx)
			defer stopFlush()
			go network.Run(flushCtx, 100*time.Millisecond)

			builder, publisher, err := setupSnapshots(cCtx, logger, rootDomain, rootCtrl)
			if err != nil {
				return err
			}

			handler := httpserver.NewHandler(httpserver.HandlerConfig{
				Log:        logger,
				Controller: rootCtrl,
				RootAgent:  root,
				Recorder:   recorder,
				Builder:    builder,
				Publisher:  publisher,
			})
			return runServer(cCtx, logger, handler)
		},
	}
}

// setupSnapshots wires the token-list builder and publisher when storage
// locations are configured.
func setupSnapshots(cCtx *cli.Context, logger *slog.Logger, domain uint32, ctrl *tokentroller.Controller) (*tokenlist.Builder, *tokenlist.Publisher, error) {
	locations := cCtx.StringSlice(flags.StorageFlag.Name)
	if len(locations) == 0 {
		return nil, nil, nil
	}

	uris := make([]interfaces.StorageBackendLocation, 0, len(locations))
	for _, location := range locations {
		uris = append(uris, interfaces.StorageBackendLocation(location))
	}
	backend, err := storage.NewFactory(logger).CreateMultiBackend(uris)
	if err != nil {
		return nil, nil, fmt.Errorf("configure snapshot storage: %w", err)
	}

	builder := tokenlist.NewBuilder(cCtx.String(flags.TokenListNameFlag.Name), domain, ctrl.Registry(), ctrl.Metadata())
	return builder, tokenlist.NewPublisher(backend, logger), nil
}

func runServer(cCtx *cli.Context, logger *slog.Logger, handler *httpserver.Handler) error {
	srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name)), handler)
	if err != nil {
		return err
	}
	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	srv.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func parseAddr(raw string) (gethcommon.Address, error) {
	if !gethcommon.IsHexAddress(raw) {
		return gethcommon.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return gethcommon.HexToAddress(raw), nil
}

func parseLeafEndpoint(raw string) (uint32, string, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid leaf endpoint %q, expected domain=url", raw)
	}
	domain, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("invalid leaf domain in %q: %w", raw, err)
	}
	return uint32(domain), parts[1], nil
}
