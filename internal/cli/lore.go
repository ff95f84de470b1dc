package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/roomverse/internal/store"
)

func init() {
	loreCmd := &cobra.Command{
		Use:   "lore",
		Short: "Manage the character's lore book",
	}

	addCmd := &cobra.Command{
		Use:   "add [keyword] [content]",
		Short: "Add or replace a lore entry",
		Args:  cobra.ExactArgs(2),
		Run:   runLoreAdd,
	}
	addCmd.Flags().String("keyword-translated", "", "Translated keyword")
	addCmd.Flags().String("content-translated", "", "Translated content")
	addCmd.Flags().StringP("book", "b", "", "Lore book name (default: default)")
	addCmd.Flags().StringP("aliases", "a", "", "Comma-separated alternate match terms")
	addCmd.Flags().Bool("constant", false, "Always inject, no keyword match needed")
	addCmd.Flags().Bool("disabled", false, "Store the entry but never match it")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List lore entries",
		Run:   runLoreList,
	}
	listCmd.Flags().Bool("enabled", false, "Only enabled entries")

	rmCmd := &cobra.Command{
		Use:   "rm [keyword]",
		Short: "Delete a lore entry",
		Args:  cobra.ExactArgs(1),
		Run:   runLoreRm,
	}

	loreCmd.AddCommand(addCmd, listCmd, rmCmd)
	RootCmd.AddCommand(loreCmd)
}

func runLoreAdd(cmd *cobra.Command, args []string) {
	keywordTranslated, _ := cmd.Flags().GetString("keyword-translated")
	contentTranslated, _ := cmd.Flags().GetString("content-translated")
	book, _ := cmd.Flags().GetString("book")
	aliases, _ := cmd.Flags().GetString("aliases")
	constant, _ := cmd.Flags().GetBool("constant")
	disabled, _ := cmd.Flags().GetBool("disabled")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entry, err := s.UpsertLore(cmd.Context(), store.LoreParams{
		Keyword:           args[0],
		KeywordTranslated: keywordTranslated,
		Content:           args[1],
		ContentTranslated: contentTranslated,
		Book:              book,
		Aliases:           aliases,
		Constant:          constant,
		Enabled:           !disabled,
		Author:            "host",
	})
	if err != nil {
		exitErr("lore add", err)
	}

	b, _ := json.Marshal(entry)
	fmt.Println(string(b))
}

func runLoreList(cmd *cobra.Command, args []string) {
	enabledOnly, _ := cmd.Flags().GetBool("enabled")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.ListLore(cmd.Context(), enabledOnly)
	if err != nil {
		exitErr("lore list", err)
	}

	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}

func runLoreRm(cmd *cobra.Command, args []string) {
	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.DeleteLore(cmd.Context(), args[0]); err != nil {
		exitErr("lore rm", err)
	}

	fmt.Printf(`{"ok":true,"keyword":%q}`+"\n", args[0])
}
