// Package cli implements the mcp-call command line: list tools and
// resources, call tools through the result pipeline, and render saved
// tool results.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/localrivet/mcpcontent/logx"
)

// Command names.
const (
	CmdTools     = "tools"
	CmdResources = "resources"
	CmdRead      = "read"
	CmdCall      = "call"
	CmdRender    = "render"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath  string
	server      string
	url         string
	command     string
	commandArgs []string
	headers     []string
	timeout     time.Duration
	logLevel    string
	outputDir   string
	jsonOutput  bool
}

// NewRootCommand builds the mcp-call command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "mcp-call",
		Short: "Call MCP tools and render their results",
		Long: `mcp-call connects to a Model Context Protocol server and calls its tools.

Tool results are parsed into text, image, audio and resource blocks. Media is
decoded and written to the output directory, and the rendered text is printed
with markers in place of the media.

Servers come from a YAML configuration file or from --url / --command.

Examples:
  # List the tools of the default configured server
  mcp-call tools

  # Call a tool on a WebSocket server
  mcp-call call generate_image --url ws://localhost:8080/mcp --arg prompt="a red fox"

  # Call a tool on a stdio server
  mcp-call call echo --command ./server --arg message=hi

  # Render a saved CallToolResult for the user
  mcp-call render result.json --audience user`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default mcp-call.yaml when present)")
	flags.StringVarP(&opts.server, "server", "s", "", "configured server to use (default: the config's default_server)")
	flags.StringVar(&opts.url, "url", "", "WebSocket endpoint of the server, overriding the configuration")
	flags.StringVar(&opts.command, "command", "", "server executable to run over stdio, overriding the configuration")
	flags.StringArrayVar(&opts.commandArgs, "command-arg", nil, "argument passed to --command (repeatable)")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, "extra connect header as Name=Value (repeatable)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "request timeout (default from configuration, else 5m)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warning, error")
	flags.StringVarP(&opts.outputDir, "output-dir", "o", "", "directory media files are written to")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newToolsCommand(opts),
		newResourcesCommand(opts),
		newReadCommand(opts),
		newCallCommand(opts),
		newRenderCommand(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes levelled logs to w. Level falls back to the configured
// one, then to warning so command output stays clean.
func newLogger(w io.Writer, flagLevel, configLevel string) (logx.Logger, error) {
	logger := logx.NewLogger(w, "mcp-call ")
	level := flagLevel
	if level == "" {
		level = configLevel
	}
	if level == "" {
		level = "warning"
	}
	parsed, ok := logx.ParseLevel(level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	logger.SetLevel(parsed)
	return logger, nil
}
