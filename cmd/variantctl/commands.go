package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	models "variantree/internal/domain/models/branching"
	branchingSvc "variantree/internal/domain/services/branching"
	"variantree/internal/repository/postgres"
)

func newAppendCmd(opts *storeOpts) *cobra.Command {
	var (
		threadID string
		role     string
		content  string
		parentID string
	)

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a message to a thread",
		Long:  "Appends an ordinary message. With --parent the message continues the parent's conversation branch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			req := &branchingSvc.AppendMessageRequest{
				ThreadID: threadID,
				Role:     role,
				Content:  content,
			}
			if parentID != "" {
				req.ParentMessageID = &parentID
			}

			msg, err := s.services.Message.AppendMessage(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Appended message %s (branch %s)\n", msg.ID, msg.ConversationBranchID)
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread ID (required)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleUser), "message role (user, assistant)")
	cmd.Flags().StringVar(&content, "content", "", "message content")
	cmd.Flags().StringVar(&parentID, "parent", "", "message this one replies to")
	cmd.MarkFlagRequired("thread")
	return cmd
}

func newRetryCmd(opts *storeOpts) *cobra.Command {
	var content string

	cmd := &cobra.Command{
		Use:   "retry <message-id>",
		Short: "Create a new variant of a message",
		Long:  "Creates the next variant of the message's root. With --content the variant is an edit; otherwise it is a pending regeneration.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			req := &branchingSvc.RetryRequest{MessageID: args[0]}
			if cmd.Flags().Changed("content") {
				req.Content = &content
			}

			result, err := s.services.Retry.Retry(cmd.Context(), req)
			if err != nil {
				return err
			}

			forked := ""
			if result.Forked {
				forked = ", forked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created variant %s of %s (sequence %d, branch %s, branch point %s%s)\n",
				result.Variant.ID, result.RootID, result.Variant.Sequence(),
				result.ConversationBranchID, result.BranchPoint, forked)
			return nil
		},
	}

	cmd.Flags().StringVar(&content, "content", "", "edited content for the new variant")
	return cmd
}

func newVariantsCmd(opts *storeOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "variants <message-id>",
		Short: "List the variant set containing a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			set, err := s.services.Query.ListVariants(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Root %s: %d version(s)\n", set.RootID, set.Total)
			return printMessages(cmd.OutOrStdout(), set.Messages)
		},
	}
}

func newBranchCmd(opts *storeOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "branch <conversation-branch-id>",
		Short: "List the messages of a conversation branch, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			messages, err := s.services.Query.ListBranchMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(messages) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No messages in branch %s\n", args[0])
				return nil
			}
			return printMessages(cmd.OutOrStdout(), messages)
		},
	}
}

func newBranchesCmd(opts *storeOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "branches <thread-id>",
		Short: "List the conversation branches of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			branches, err := s.services.Query.ListBranches(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, b := range branches {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	}
}

func newMigrateCmd(opts *storeOpts) *cobra.Command {
	var drop bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Long:  "Creates the messages table and its indexes. Idempotent. The pebble driver needs no schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.loadConfig()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("migrate needs --database-url or DATABASE_URL")
			}

			pool, err := postgres.CreateConnectionPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			tables := postgres.NewTableNames(cfg.TablePrefix)
			if drop {
				if err := postgres.DropSchema(cmd.Context(), pool, tables); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s\n", tables.Messages)
			}
			if err := postgres.Migrate(cmd.Context(), pool, tables); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Schema applied to %s\n", tables.Messages)
			return nil
		},
	}

	cmd.Flags().BoolVar(&drop, "drop", false, "drop the messages table first (destroys data)")
	return cmd
}

func printMessages(out io.Writer, messages []models.Message) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEQ\tROLE\tSTATUS\tBRANCH\tCREATED")
	for _, m := range messages {
		seq := "root"
		if !m.IsRoot() {
			seq = fmt.Sprintf("%d", m.Sequence())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, seq, m.Role, m.Status, m.ConversationBranchID, m.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
