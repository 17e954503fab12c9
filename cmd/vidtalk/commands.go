package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage saved video conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/conversations?userId=%s&limit=%d", url.QueryEscape(userID), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var convs []struct {
			ID            string `json:"id"`
			VideoID       string `json:"video_id"`
			VideoTitle    string `json:"video_title"`
			LastUpdatedAt string `json:"last_updated_at"`
		}
		if err := decodeJSON(resp, &convs); err != nil {
			return err
		}

		if len(convs) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		for _, c := range convs {
			title := c.VideoTitle
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s\n", colorize(colorBold, c.ID), title)
			fmt.Printf("  video: %s  updated: %s\n", c.VideoID, c.LastUpdatedAt)
		}
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/conversations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted conversation %s", args[0])
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().String("user", "", "user id to list conversations for")
	conversationsListCmd.Flags().Int("limit", 20, "maximum number of results")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}
