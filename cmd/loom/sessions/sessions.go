// Package sessionscmder lists the sessions in a memory store.
package sessionscmder

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loomcomputeco/loom/pkg/config"
	"github.com/loomcomputeco/loom/pkg/logger"
	"github.com/loomcomputeco/loom/pkg/store"
)

func NewSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions and their event counts",
		RunE:  runSessions,
	}
}

func runSessions(cmd *cobra.Command, _ []string) error {
	configDir, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	log := logger.New(debug || cfg.Debug)
	defer log.Sync()

	st, err := store.Open(store.Config{
		Path:           cfg.Store.Path,
		Dimensions:     cfg.Embedding.Dimensions,
		MaxConnections: cfg.Store.MaxConnections,
		EnableWAL:      cfg.Store.EnableWAL,
		AutoMigrate:    cfg.Store.AutoMigrate,
	}, log)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tCREATED\tACTIVE\tEVENTS")
	for _, s := range sessions {
		count, err := st.EventCount(cmd.Context(), s.ID)
		if err != nil {
			return err
		}
		active := ""
		if s.Active {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.User, s.CreatedAt.Format("2006-01-02 15:04:05"), active, count)
	}
	return w.Flush()
}
