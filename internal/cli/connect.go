package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/localrivet/mcpcontent/auth"
	"github.com/localrivet/mcpcontent/client"
	"github.com/localrivet/mcpcontent/config"
	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/pipeline"
)

// environment is what a subcommand needs once flags and configuration have
// been resolved.
type environment struct {
	cfg    *config.Config
	server config.ServerConfig
	logger logx.Logger
}

// loadConfig reads the configuration. Without --config a missing default
// file is not an error, provided --url or --command names the server.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultConfigFile
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if o.url == "" && o.command == "" {
				return nil, fmt.Errorf("no %s found; pass --config, --url or --command", path)
			}
			return nil, nil
		}
	}
	return config.Load(path)
}

// resolve merges flags over the configuration.
func (o *globalOptions) resolve(stderr io.Writer) (*environment, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg}
	switch {
	case o.url != "" || o.command != "":
		env.server = config.ServerConfig{Name: "cli", URL: o.url, Command: o.command, Args: o.commandArgs}
		if err := env.server.Validate(); err != nil {
			return nil, err
		}
	default:
		s, err := cfg.Server(o.server)
		if err != nil {
			return nil, err
		}
		env.server = *s
	}

	if len(o.headers) > 0 {
		headers := make(map[string]string, len(env.server.Headers)+len(o.headers))
		for k, v := range env.server.Headers {
			headers[k] = v
		}
		for _, h := range o.headers {
			name, value, ok := strings.Cut(h, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("invalid header %q, want Name=Value", h)
			}
			headers[name] = value
		}
		env.server.Headers = headers
	}

	configLevel := ""
	if cfg != nil {
		configLevel = cfg.LogLevel
	}
	env.logger, err = newLogger(stderr, o.logLevel, configLevel)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// connect opens a client to the resolved server.
func (o *globalOptions) connect(ctx context.Context, env *environment) (*client.Client, error) {
	provider, err := env.server.Auth.Provider()
	if err != nil {
		return nil, err
	}
	timeout := o.timeout
	if timeout == 0 {
		if timeout, err = env.server.RequestTimeout(); err != nil {
			return nil, err
		}
	}

	opts := []client.Option{
		client.WithLogger(env.logger),
		client.WithClientInfo("mcp-call", "0.1.0"),
		client.WithAuth(provider),
	}
	if timeout > 0 {
		opts = append(opts, client.WithRequestTimeout(timeout))
	}

	if env.server.Command != "" {
		return client.ConnectCommand(ctx, env.server.Command, env.server.Args, env.server.Env, opts...)
	}
	return client.Connect(ctx, env.server.URL, env.server.Headers, opts...)
}

// withPrincipal attaches the configured identity to ctx.
func (env *environment) withPrincipal(ctx context.Context) (context.Context, error) {
	if env.cfg == nil {
		return ctx, nil
	}
	principal, err := env.cfg.Identity.Principal(ctx, http.DefaultClient)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}
	if principal == nil {
		return ctx, nil
	}
	env.logger.Debug("Storing media on behalf of %s", principal.GetSubject())
	return auth.ContextWithPrincipal(ctx, principal), nil
}

// processor builds the result pipeline from configuration and flags.
func (o *globalOptions) processor(env *environment, events pipeline.EventSink) *pipeline.Processor {
	var pc config.PipelineConfig
	if env.cfg != nil {
		pc = env.cfg.Pipeline
	}
	dir := o.outputDir
	if dir == "" {
		dir = pc.OutputDir
	}
	if dir == "" {
		dir = config.DefaultOutputDir
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(env.logger),
		pipeline.WithMediaSink(pipeline.NewDirSink(dir, pc.BaseURL)),
		pipeline.WithMetadata(map[string]interface{}{"server": env.server.Name}),
	}
	if events != nil {
		opts = append(opts, pipeline.WithEventSink(events))
	}
	if pc.FilePrefix != "" {
		opts = append(opts, pipeline.WithFilePrefix(pc.FilePrefix))
	}
	return pipeline.NewProcessor(opts...)
}
