// Package flags holds the CLI flags and setup helpers shared by the
// registry commands.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/builtbymom/tokenregistry/common"
	"github.com/builtbymom/tokenregistry/httpserver"
)

func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJSONFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUIDFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the registry API",
}

var OwnerFlag = &cli.StringFlag{
	Name:     "owner",
	Required: true,
	Usage:    "governance owner address, 0x-prefixed hex",
}

var DomainFlag = &cli.UintFlag{
	Name:  "domain",
	Value: 1,
	Usage: "local chain domain id",
}

var StorageFlag = &cli.StringSliceFlag{
	Name:  "storage",
	Usage: "snapshot storage location URI (repeatable), e.g. file:///var/lib/registry or s3://bucket/prefix?region=us-east-1",
}

var TokenListNameFlag = &cli.StringFlag{
	Name:  "tokenlist-name",
	Value: "Permissioned Token List",
	Usage: "name stamped on published token lists",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "tokenregistry",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

var CommonFlags = []cli.Flag{
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
}
