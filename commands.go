package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Chative-reservations/server/internal/agent/model"
	"github.com/Chative-reservations/server/internal/backend"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "reservas",
		Short:        "Restaurant reservation assistant: conversational core over the reservation backend",
		SilenceUsage: true,
	}

	root.AddCommand(newChatCmd())
	root.AddCommand(newStateCmd())
	root.AddCommand(newPolicyCmd())
	return root
}

func newChatCmd() *cobra.Command {
	var (
		conversationID string
		phone          string
		name           string
	)

	c := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal, one message per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			orch, closeAll, err := buildOrchestrator(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeAll()

			if conversationID == "" {
				conversationID = uuid.NewString()
			}
			var profile *model.CallerProfile
			if phone != "" || name != "" {
				profile = &model.CallerProfile{Phone: phone, Name: name}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Conversation %s (Ctrl+D to quit)\n", conversationID)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				res, err := orch.HandleTurn(ctx, model.TurnRequest{ConversationID: conversationID, Message: line, Profile: profile})
				if res != nil {
					fmt.Fprintln(out, res.Reply)
					if res.Action != nil {
						b, _ := json.MarshalIndent(res.Action, "", "  ")
						fmt.Fprintf(out, "structured_action: %s\n", b)
					}
				}
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
			}
		},
	}

	c.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id (random when empty)")
	c.Flags().StringVar(&phone, "phone", "", "caller phone used to seed a new conversation")
	c.Flags().StringVar(&name, "name", "", "caller name used to seed a new conversation")
	return c
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or clear stored conversation state",
	}
	cmd.AddCommand(newStateShowCmd())
	cmd.AddCommand(newStateClearCmd())
	return cmd
}

func newStateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print the stored state of a conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			st, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			b, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func newStateClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <conversation-id>",
		Short: "Delete the stored state of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conversation %s cleared\n", args[0])
			return nil
		},
	}
}

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Read backend policies",
	}
	cmd.AddCommand(newPolicyDurationCmd())
	return cmd
}

func newPolicyDurationCmd() *cobra.Command {
	var force bool

	c := &cobra.Command{
		Use:   "duration",
		Short: "Print the reservation duration the backend currently enforces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			gw, err := backend.NewGateway(cfg.Backend)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			minutes, err := gw.Durations().Read(ctx, force)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: policy read failed, showing fallback: %v\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", minutes)
			return nil
		},
	}

	c.Flags().BoolVar(&force, "force", false, "bypass the cache TTL")
	return c
}
