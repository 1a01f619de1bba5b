// Command workflows runs the durable workflow service.
//
// Usage:
//
//	workflows serve --config config.yaml
//	workflows validate --config config.yaml
//	workflows validate graph.json
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/anuj67851/genai-workflow-maker/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the workflow server."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration or a workflow graph file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

func main() {
	// A .env next to the binary is the easiest place for OPENAI_API_KEY
	// during local development.
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("workflows"),
		kong.Description("Durable, pausable generative-AI workflow engine"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

// initLogger applies CLI flags over LOG_LEVEL / LOG_FILE / LOG_FORMAT
// environment variables.
func initLogger(cli *CLI) (func(), error) {
	level := cli.LogLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	format := cli.LogFormat
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	path := cli.LogFile
	if path == "" {
		path = os.Getenv("LOG_FILE")
	}

	output := os.Stderr
	var cleanup func()
	if path != "" {
		file, closeFile, err := logger.OpenLogFile(path)
		if err != nil {
			return nil, err
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(logger.ParseLevel(level), output, format)
	return cleanup, nil
}
