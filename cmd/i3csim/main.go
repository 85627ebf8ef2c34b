// Command i3csim drives the softi3c engine against a simulated I3C bus
// described by a scenario file.
package main

import (
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/ardnew/softi3c/internal/log"
	"github.com/ardnew/softi3c/pkg"
)

func main() {
	userCfg := findUserConfig(os.Args[1:], os.Getenv)
	jsonPaths, yamlPaths, tomlPaths := configCandidatePaths(userCfg)

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("i3csim"),
		kong.Description("Drive a simulated I3C bus with the softi3c engine"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	opts := log.Options{Level: cli.Log.Level, File: cli.Log.File, Format: cli.Log.Format}
	logger, closers, err := log.SetupLogger(opts)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to set up logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	log.Install(logger, opts)

	ctx.Bind(logger)
	ctx.Bind(&cli.Globals)
	ctx.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil))
	stop := cli.startProfiles(logger)
	err = ctx.Run()
	stop()
	if err != nil {
		logger.Debug("command failed", "status", pkg.StatusOf(err))
	}
	ctx.FatalIfErrorf(err)
}

// findUserConfig returns the --config argument, falling back to
// I3CSIM_CONFIG. The file must be known before kong parses the command
// line because it feeds the configuration loaders.
func findUserConfig(args []string, getenv func(string) string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return getenv("I3CSIM_CONFIG")
}
