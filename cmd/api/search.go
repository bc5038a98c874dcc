package main

import (
	"fmt"
	"strings"

	"inkwell/api/internal/search"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "manage the search index",
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "push every stored document to Meilisearch",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(cfg.MeiliURL) == "" {
				return fmt.Errorf("MEILI_URL is not set")
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
			defer meiliClient.Close()

			count, err := search.NewService(meiliClient, search.NewStoreSearcher(st)).ReindexAll(cmd.Context())
			if err != nil {
				return err
			}
			logrus.WithField("documents", count).Info("search: reindex complete")
			return nil
		},
	}
}
