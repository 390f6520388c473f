package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/baalimago/chatmux/internal/config"
	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/baalimago/chatmux/internal/router"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/spf13/cobra"
)

const rootLong = `chatmux - a streaming chat router in front of OpenAI, Anthropic, Mistral,
Gemini and DeepSeek, with tool calling and per user rate limits.

Prerequisites:
  - Set the API key of each provider you want to use: OPENAI_API_KEY,
    ANTHROPIC_API_KEY, MISTRAL_API_KEY, GEMINI_API_KEY, DEEPSEEK_API_KEY.
    Keys may also be put in a .env file in the working directory.
  - Every key of the config file may be overridden with an env var, for
    example CHATMUX_RATE_LIMIT_FREE=20 or CHATMUX_ADDR=:9090.`

type rootFlags struct {
	configPath string
	envFiles   []string
}

// NewRootCmd creates the chatmux command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "chatmux",
		Short:         "Streaming chat router for multiple model providers",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(flags.envFiles...)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultPath, "path to the config file, created with defaults if missing")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "env files to load before setup (default .env)")

	root.AddCommand(
		newServeCmd(flags),
		newModelsCmd(flags),
		newTitleCmd(flags),
		newQueryCmd(flags),
		newVersionCmd(),
	)
	return root
}

// withApp loads the config, sets up the app and closes it once f returns.
func withApp(ctx context.Context, flags *rootFlags, f func(*App, *config.Loader) error) error {
	loader, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	app, err := Setup(ctx, loader.Get())
	if err != nil {
		return fmt.Errorf("failed to setup: %w", err)
	}
	defer app.Close()
	return f(app, loader)
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App, loader *config.Loader) error {
				if addr != "" {
					app.conf.Addr = addr
				}
				loader.OnChange(func(_, conf config.Config) {
					if addr != "" {
						conf.Addr = addr
					}
					app.Reconfigure(conf)
				})
				loader.Watch()
				return app.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on, overrides the config file")
	return cmd
}

func newModelsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models of the catalog and whether their provider is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App, _ *config.Loader) error {
				return printModels(cmd.OutOrStdout(), app.Router)
			})
		},
	}
}

func printModels(w io.Writer, r *router.Router) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tTOOLS\tVISION\tAVAILABLE")
	for _, m := range r.Catalog().List() {
		fmt.Fprintf(tw, "%v\t%v\t%v\t%v\t%v\n", m.ID, m.Provider, m.Capabilities.Tools, m.Capabilities.Vision, r.Available(m))
	}
	return tw.Flush()
}

func newTitleCmd(flags *rootFlags) *cobra.Command {
	var modelID string
	cmd := &cobra.Command{
		Use:   "title <text>",
		Short: "Generate a title for a conversation starting with text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App, _ *config.Loader) error {
				msgs := []pub_models.Message{{Role: pub_models.RoleUser, Content: strings.Join(args, " ")}}
				title, err := app.Router.GenerateTitle(cmd.Context(), modelID, msgs)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), title)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "gpt-4o-mini", "model to use")
	return cmd
}

func newQueryCmd(flags *rootFlags) *cobra.Command {
	var (
		modelID string
		userID  string
		tier    string
		system  string
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Stream the answer to a single prompt, with tools",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App, _ *config.Loader) error {
				var msgs []pub_models.Message
				if system != "" {
					msgs = append(msgs, pub_models.Message{Role: pub_models.RoleSystem, Content: system})
				}
				msgs = append(msgs, pub_models.Message{Role: pub_models.RoleUser, Content: strings.Join(args, " ")})
				stream := app.Router.StreamChat(cmd.Context(), router.Request{
					ModelID:  modelID,
					Messages: msgs,
					UserID:   userID,
					Tier:     ratelimit.ParseTier(tier),
				})
				return printStream(cmd.OutOrStdout(), stream)
			})
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "gpt-4o-mini", "model to use")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to account the request to")
	cmd.Flags().StringVar(&tier, "tier", string(ratelimit.TierFree), "tier of the user, free or pro")
	cmd.Flags().StringVarP(&system, "system", "s", "", "system prompt")
	return cmd
}

// printStream writes text chunks to w and reports tool activity on the
// side. The last error chunk is returned.
func printStream(w io.Writer, stream <-chan pub_models.Chunk) error {
	var err error
	for chunk := range stream {
		switch chunk.Type {
		case pub_models.ChunkText:
			fmt.Fprint(w, chunk.Content)
		case pub_models.ChunkToolCall:
			ancli.Noticef("calling tool: '%v'\n", chunk.Name)
		case pub_models.ChunkToolResult:
			ancli.Noticef("tool '%v' returned %v bytes\n", chunk.Name, len(chunk.Result))
		case pub_models.ChunkError:
			err = errors.New(chunk.Message)
		}
	}
	fmt.Fprintln(w)
	return err
}

func newVersionCmd() *cobra.Command {
	var withDeps bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(cmd.OutOrStdout(), withDeps)
		},
	}
	cmd.Flags().BoolVar(&withDeps, "deps", false, "also print the versions of the dependencies")
	return cmd
}

// Execute runs the command tree and returns the exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		ancli.Errf("%v\n", err)
		return 1
	}
	return 0
}
