package cli

import (
	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/config"
	"chat-quiz-service/internal/infra/memory"
	"chat-quiz-service/internal/tui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewChatCmd runs the terminal UI against an in-process service.
func NewChatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat and quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			results, closer, err := openResultStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			service := app.NewChatService(memory.NewSessionStore(), results, newCompletionClient(cfg), nil, chatDefaults(cfg))
			return tui.NewApp(service, uuid.NewString()).Run(ctx)
		},
	}
}
