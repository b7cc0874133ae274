package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/edulive/session-knowledge/internal/app"
	"github.com/edulive/session-knowledge/internal/chunker"
	"github.com/edulive/session-knowledge/internal/config"
	"github.com/edulive/session-knowledge/internal/database"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/redis"
	"github.com/edulive/session-knowledge/internal/service"
	"github.com/edulive/session-knowledge/internal/util"
)

// --- chunk ---

func newChunkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk [file]",
		Short: "Split a transcript into retrieval chunks",
		Long: `Split transcript text into the chunks the pipeline would embed.
Reads the file argument, or stdin when no file is given. Prints one JSON
object per chunk.

Examples:
  knowledgectl chunk transcript.txt
  cat transcript.txt | knowledgectl chunk --max-chars 500`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxChars, _ := cmd.Flags().GetInt("max-chars")

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening transcript: %w", err)
				}
				defer f.Close()
				in = f
			}

			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("reading transcript: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for i, chunk := range chunker.Chunk(string(text), maxChars) {
				if err := enc.Encode(map[string]any{
					"index": i,
					"chars": len([]rune(chunk)),
					"text":  chunk,
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("max-chars", chunker.DefaultMaxChars, "maximum characters per chunk")
	return cmd
}

// --- token ---

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Generate an API token and the hash to store in users.api_token_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := util.GenerateToken()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token: %s\n", token)
			fmt.Fprintf(out, "hash:  %s\n", util.HashToken(token))
			return nil
		},
	}
}

// --- reindex ---

func newReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex <session-id>",
		Short: "Rebuild a session's transcript index",
		Long: `Rebuild a session's transcript and chunk index from its stored recording.
By default a job is queued for the server's runner. With --inline the
pipeline runs in this process.

Use --from-provider to fetch the newest finished recording from the room
provider instead, e.g. when the recording was never stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			if !util.IsValidUUID(sessionID) {
				return fmt.Errorf("session id must be a UUID")
			}
			inline, _ := cmd.Flags().GetBool("inline")
			fromProvider, _ := cmd.Flags().GetBool("from-provider")

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				session, err := a.Sessions.FindByID(ctx, sessionID)
				if err != nil {
					return err
				}
				if session == nil {
					return fmt.Errorf("session %s not found", sessionID)
				}

				job := reindexJob(session, fromProvider)
				if !inline {
					if err := a.Queue.Schedule(ctx, job, 0); err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), map[string]any{"queued": true, "jobId": job.ID})
				}

				result, err := a.Orchestrator.Run(ctx, job)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().Bool("inline", false, "run the pipeline in this process")
	cmd.Flags().Bool("from-provider", false, "acquire the recording from the room provider")
	return cmd
}

func reindexJob(session *model.Session, fromProvider bool) model.Job {
	source := model.RecordingSourceStorage
	if fromProvider {
		source = model.RecordingSourceProvider
	}
	return model.Job{
		ID:        uuid.NewString(),
		Type:      model.JobTypeProcessRecording,
		SessionID: session.ID,
		Source:    source,
		Attempt:   1,
	}
}

// --- ask ---

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <session-id> <question>",
		Short: "Ask a question about a session as a given user",
		Example: `  KNOWLEDGE_TOKEN=... knowledgectl ask 6f1c2b9e-8d4a-4f3e-9b7a-2c5d1e0f3a4b "What is mitosis?"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = os.Getenv("KNOWLEDGE_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("--token or KNOWLEDGE_TOKEN is required")
			}
			sessionID := args[0]
			question := strings.Join(args[1:], " ")

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				user, err := a.Users.FindByTokenHash(ctx, util.HashToken(token))
				if err != nil {
					return err
				}
				if user == nil {
					return fmt.Errorf("invalid token")
				}

				answer, err := a.Questions.Ask(ctx, user, sessionID, service.AskParams{Question: question})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), answer)
			})
		},
	}
	cmd.Flags().String("token", "", "API token of the asking user")
	return cmd
}

// withApp loads config from the environment and opens the database and Redis
// for the duration of fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	a := app.New(cfg, db, redisClient)
	defer a.Broker.Close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
