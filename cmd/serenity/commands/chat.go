package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/serenity/serenity/api"
	"github.com/ZanzyTHEbar/serenity/serenity/generation/harness"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	chatIdentity string
	chatJSON     bool
	chatPreload  bool
)

// NewChatCmd creates the interactive chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the companion over stdin",
		Long: `Read messages from stdin, one per line, and print each reply.

With --json every input line must be a request object
{"message": "...", "identity": "..."} and every output line is the
response object described by "serenity schema response".

Examples:
  serenity chat --identity alice
  echo '{"message":"hi","identity":"bob"}' | serenity chat --json
  serenity chat --preload`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}

	cmd.Flags().StringVar(&chatIdentity, "identity", "", "conversation identity (default: random per session)")
	cmd.Flags().BoolVar(&chatJSON, "json", false, "read JSON requests and write JSON responses")
	cmd.Flags().BoolVar(&chatPreload, "preload", false, "check and load the model before reading input")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt := state

	conn, err := openDatabase(ctx, rt.cfg.Database, rt.logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if conn != nil {
		defer conn.Close()
	}

	pipeline, err := harness.NewFactory(rt.cfg, conn, rt.logger).CreatePipeline()
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	defer func() {
		rt.logger.Info().Int("identities", len(pipeline.History().Identities())).Msg("chat session ended")
		if err := pipeline.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("pipeline close failed")
		}
	}()

	if chatPreload {
		if err := preloadModel(ctx, pipeline, rt); err != nil {
			return err
		}
	}

	watchLogLevel(rt)

	if chatJSON {
		handler, err := api.NewHandler(pipeline)
		if err != nil {
			return err
		}
		return serveJSON(cmd, handler, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	identity := chatIdentity
	if identity == "" {
		identity = uuid.NewString()
	}
	return serveText(cmd, pipeline, identity, cmd.InOrStdin(), cmd.OutOrStdout())
}

// preloadModel fails fast on a missing model file instead of degrading the
// first turn.
func preloadModel(ctx context.Context, p *harness.Pipeline, rt appState) error {
	if err := p.Models.ValidateModels(); err != nil {
		return fmt.Errorf("validating model: %w", err)
	}
	if err := p.Models.PreloadModels(ctx); err != nil {
		return fmt.Errorf("preloading model: %w", err)
	}
	rt.logger.Info().Int64("attempts", p.Models.LoadAttempts()).Msg("model preloaded")
	return nil
}

func serveText(cmd *cobra.Command, p api.Processor, identity string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "/quit" {
			return nil
		}

		res := p.ProcessTurn(cmd.Context(), message, identity)
		fmt.Fprintln(out, res.Reply)
		fmt.Fprintf(out, "  [emotion=%s sentiment=%s", res.Emotion.Emotion, res.Sentiment.Label)
		if r := res.Redirect.Ptr(); r != nil {
			fmt.Fprintf(out, " redirect=%s", *r)
		}
		if res.Crisis {
			fmt.Fprintf(out, " contact=%s", res.ContactPath)
		}
		fmt.Fprintln(out, "]")
	}
}

func serveJSON(cmd *cobra.Command, h *api.Handler, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	enc := json.NewEncoder(out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp, err := h.Handle(cmd.Context(), []byte(line))
		if err != nil {
			if err := enc.Encode(map[string]string{"error": err.Error()}); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(out, string(resp)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
