// Package graphcmder shows a session's entity graph.
package graphcmder

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loomcomputeco/loom/pkg/config"
	"github.com/loomcomputeco/loom/pkg/logger"
	"github.com/loomcomputeco/loom/pkg/store"
)

func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [session-id]",
		Short: "Show a session's entity graph",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGraph,
	}
	cmd.Flags().Float64("min-weight", 0, "Hide edges below this weight")
	return cmd
}

func runGraph(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	minWeight, _ := cmd.Flags().GetFloat64("min-weight")

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

	var sessionID string
	if len(args) > 0 {
		sessionID = args[0]
	} else {
		active, err := st.ActiveSession(cmd.Context())
		if err != nil {
			return err
		}
		if active == nil {
			return fmt.Errorf("no active session; pass a session id")
		}
		sessionID = active.ID
	}

	entities, err := st.ListEntities(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	names := make(map[int64]string, len(entities))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tTYPE\tMENTIONS")
	for _, e := range entities {
		names[e.ID] = e.Name
		fmt.Fprintf(w, "%s\t%s\t%d\n", e.Name, e.Type, e.MentionCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tRELATION\tTARGET\tWEIGHT")
	seen := make(map[[2]int64]map[string]bool)
	for _, e := range entities {
		edges, err := st.EdgesFrom(cmd.Context(), e.ID, minWeight)
		if err != nil {
			return err
		}
		for _, edge := range edges {
			pair := [2]int64{edge.SourceID, edge.TargetID}
			if seen[pair] == nil {
				seen[pair] = make(map[string]bool)
			}
			if seen[pair][edge.Relation] {
				continue
			}
			seen[pair][edge.Relation] = true
			fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\n",
				names[edge.SourceID], edge.Relation, names[edge.TargetID], edge.Weight)
		}
	}
	return w.Flush()
}
