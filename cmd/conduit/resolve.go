package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/rahul/conduit/internal/resolver"
)

func newResolveCommand() *cobra.Command {
	var contacts, docs, tasks []string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve mentions against the store and print what matched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mentions := map[resolver.Kind][]string{
				resolver.KindContact:  contacts,
				resolver.KindDocument: docs,
				resolver.KindTask:     tasks,
			}
			if len(contacts)+len(docs)+len(tasks) == 0 {
				return errors.New("nothing to resolve; pass --contact, --document or --task")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.ErrOrStderr(), printMessenger{w: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer a.Close()

			resolved, unresolved, err := a.resolver.Resolve(cmd.Context(), mentions)
			if err != nil {
				return err
			}
			if unresolved == nil {
				unresolved = []string{}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"resolved":   resolved,
				"unresolved": unresolved,
				"question":   resolver.Missing(unresolved),
			})
		},
	}

	cmd.Flags().StringSliceVar(&contacts, "contact", nil, "Contact mention (name or email)")
	cmd.Flags().StringSliceVar(&docs, "document", nil, "Document mention (title or content)")
	cmd.Flags().StringSliceVar(&tasks, "task", nil, "Task mention (description or assignee)")
	return cmd
}
