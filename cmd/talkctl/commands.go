package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"zhutalk/internal/client"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("ZHUTALK_PASSWORD")
		}
		user, err := api.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		if err := saveSession(sessionFile, api.Cookies()); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s %s (%s)\n", user.Avatar, user.Username, user.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.Logout(cmd.Context()); err != nil {
			return err
		}
		if err := os.Remove(sessionFile); err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <article-id>",
	Short: "Show the comment thread of an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		th, err := newThread(cmd, args[0])
		if err != nil {
			return err
		}
		if err := th.Load(cmd.Context()); err != nil {
			return err
		}
		if all, _ := cmd.Flags().GetBool("all"); all {
			for th.State().HasMore {
				if err := th.LoadMore(cmd.Context()); err != nil {
					return err
				}
			}
		}
		return output(cmd, th.State())
	},
}

var postCmd = &cobra.Command{
	Use:   "post <article-id> <content>",
	Short: "Post a comment, or a reply with --parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		th, err := newThread(cmd, args[0])
		if err != nil {
			return err
		}
		parent, _ := cmd.Flags().GetString("parent")
		key, _ := cmd.Flags().GetString("idempotency-key")
		if key == "" {
			key = uuid.NewString()
		}
		created, err := th.CreateWithKey(cmd.Context(), key, parent, args[1])
		if err != nil {
			// 没收到服务端响应时，带同一个键重试不会重复发表
			var apiErr *client.APIError
			if !errors.As(err, &apiErr) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Retry with --idempotency-key %s\n", key)
			}
			return err
		}
		if created != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Posted %s\n", created.ID)
		}
		return output(cmd, th.State())
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <article-id> <comment-id> <content>",
	Short: "Change the body of a comment",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		th, err := newThread(cmd, args[0])
		if err != nil {
			return err
		}
		if err := th.Load(cmd.Context()); err != nil {
			return err
		}
		if err := th.Edit(cmd.Context(), args[1], args[2]); err != nil {
			return err
		}
		return output(cmd, th.State())
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <article-id> <comment-id>",
	Short: "Delete a comment, leaving a placeholder for its replies",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		th, err := newThread(cmd, args[0])
		if err != nil {
			return err
		}
		if err := th.Load(cmd.Context()); err != nil {
			return err
		}
		if err := th.Delete(cmd.Context(), args[1]); err != nil {
			return err
		}
		return output(cmd, th.State())
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password (or ZHUTALK_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("email")

	for _, c := range []*cobra.Command{listCmd, postCmd, editCmd, deleteCmd} {
		c.Flags().String("sort", "newest", "root order: newest or oldest")
		c.Flags().Int("limit", 0, "roots per page (server default when 0)")
		c.Flags().Int("max-depth", 6, "indentation cap when drawing the tree")
	}
	listCmd.Flags().Bool("all", false, "keep loading until every root is shown")
	postCmd.Flags().String("parent", "", "reply to this comment id")
	postCmd.Flags().String("idempotency-key", "", "reuse the key of an earlier failed post")
}

func newThread(cmd *cobra.Command, rawID string) (*client.Thread, error) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid article id %q", rawID)
	}
	sort, _ := cmd.Flags().GetString("sort")
	limit, _ := cmd.Flags().GetInt("limit")
	return client.NewThread(api, uint(id), client.WithSort(sort), client.WithPageSize(limit)), nil
}

func output(cmd *cobra.Command, st client.State) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st.Roots)
	}
	maxDepth, _ := cmd.Flags().GetInt("max-depth")
	renderThread(cmd.OutOrStdout(), st, maxDepth)
	return nil
}
