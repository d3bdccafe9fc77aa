package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/localrivet/mcpcontent/content"
	"github.com/localrivet/mcpcontent/logx"
	"github.com/localrivet/mcpcontent/pipeline"
	"github.com/localrivet/mcpcontent/progress"
	"github.com/localrivet/mcpcontent/result"
)

func newToolsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdTools,
		Short: "List the tools offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.resolve(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c, err := opts.connect(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer c.Close()

			tools, err := c.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), tools)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range tools {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, firstLine(t.Description))
			}
			return w.Flush()
		},
	}
}

func newResourcesCommand(opts *globalOptions) *cobra.Command {
	var cursor string
	var all bool
	cmd := &cobra.Command{
		Use:   CmdResources,
		Short: "List the resources offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.resolve(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c, err := opts.connect(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer c.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for {
				page, err := c.ListResources(cmd.Context(), cursor)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), page); err != nil {
						return err
					}
				} else {
					for _, r := range page.Resources {
						fmt.Fprintf(w, "%s\t%s\t%s\n", r.URI, r.Name, r.MimeType)
					}
				}
				if !all || page.NextCursor == "" || page.NextCursor == cursor {
					if !all && page.NextCursor != "" {
						env.logger.Info("More resources available; continue with --cursor %s", page.NextCursor)
					}
					break
				}
				cursor = page.NextCursor
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "pagination cursor from a previous listing")
	cmd.Flags().BoolVar(&all, "all", false, "follow nextCursor until every page is listed")
	return cmd
}

func newReadCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   CmdRead + " <uri>",
		Short: "Read a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.resolve(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c, err := opts.connect(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer c.Close()

			blocks, err := c.ReadResource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				wire := make([]map[string]interface{}, 0, len(blocks))
				for _, b := range blocks {
					wire = append(wire, content.ToWire(b))
				}
				return writeJSON(cmd.OutOrStdout(), wire)
			}
			parts := make([]string, 0, len(blocks))
			for _, b := range blocks {
				parts = append(parts, result.RenderResource(b))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, "\n"))
			return err
		},
	}
}

func newCallCommand(opts *globalOptions) *cobra.Command {
	var argsJSON string
	var pairs []string
	var raw, events bool
	cmd := &cobra.Command{
		Use:   CmdCall + " <tool>",
		Short: "Call a tool and print its processed result",
		Long: `Call a tool and print its processed result.

Arguments come from --args (a JSON object) and --arg Name=Value pairs; a pair's
value is decoded as JSON when possible and used as a string otherwise.
Progress, file and status events are written to stderr as JSON lines with --events.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseToolArgs(argsJSON, pairs)
			if err != nil {
				return err
			}
			env, err := opts.resolve(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, err := env.withPrincipal(cmd.Context())
			if err != nil {
				return err
			}
			c, err := opts.connect(ctx, env)
			if err != nil {
				return err
			}
			defer c.Close()

			tool := args[0]
			if raw {
				res, err := c.CallToolRaw(ctx, tool, toolArgs)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			}

			var sink pipeline.EventSink
			if events {
				sink = pipeline.NewJSONEventSink(cmd.ErrOrStderr())
			}
			var progressEvent string
			if env.cfg != nil {
				progressEvent = env.cfg.Pipeline.ProgressEvent
			}
			var cb progress.Callback
			if sink != nil {
				cb = pipeline.NewProgressCallback(sink, tool, progressEvent)
			} else {
				cb = logProgress(env.logger, tool)
			}

			r, err := c.CallTool(ctx, tool, toolArgs, cb)
			if err != nil {
				return err
			}
			out := opts.processor(env, sink).Process(ctx, r, tool)
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			return err
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "tool arguments as a JSON object")
	cmd.Flags().StringArrayVarP(&pairs, "arg", "a", nil, "tool argument as Name=Value (repeatable)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw result object without processing")
	cmd.Flags().BoolVar(&events, "events", false, "write pipeline events to stderr as JSON lines")
	return cmd
}

func newRenderCommand(opts *globalOptions) *cobra.Command {
	var audience string
	var summary, noStructured bool
	cmd := &cobra.Command{
		Use:   CmdRender + " [file]",
		Short: "Render a saved CallToolResult for an audience",
		Long: `Render a saved CallToolResult for an audience.

The result is read from file, or from stdin when file is omitted or "-". No
server connection is made.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := content.ParseAudience(audience)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, "")
			if err != nil {
				return err
			}

			var data []byte
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read tool result: %w", err)
			}

			r, err := result.ParseJSON(data, result.WithLogger(logger))
			if err != nil {
				return err
			}
			if summary || opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), r.Summary())
			}
			var renderOpts []result.RenderOption
			if noStructured {
				renderOpts = append(renderOpts, result.WithoutStructured())
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), r.RenderFor(who, renderOpts...))
			return err
		},
	}
	cmd.Flags().StringVar(&audience, "audience", string(content.AudienceAssistant), "audience to render for: assistant or user")
	cmd.Flags().BoolVar(&summary, "summary", false, "print the result summary as JSON")
	cmd.Flags().BoolVar(&noStructured, "no-structured", false, "omit structured content from the assistant rendering")
	return cmd
}

// parseToolArgs merges --args with --arg pairs, pairs winning.
func parseToolArgs(argsJSON string, pairs []string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("--args must be a JSON object: %w", err)
		}
		if args == nil {
			args = map[string]interface{}{}
		}
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q, want Name=Value", pair)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		args[name] = decoded
	}
	return args, nil
}

// logProgress reports progress through the logger when no event sink is set.
func logProgress(logger logx.Logger, tool string) progress.Callback {
	return func(_ context.Context, u progress.Update) error {
		if u.Message != "" {
			logger.Info("%s: %.0f%% %s", tool, u.Percentage, u.Message)
		} else {
			logger.Info("%s: %.0f%%", tool, u.Percentage)
		}
		return nil
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
