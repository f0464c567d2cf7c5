package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/detector"
	"github.com/loykin/warden/internal/store"
)

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the persisted reattach record for the configured instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			rec, found, err := st.Load(cmd.Context(), cfg.Instance.Name)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no reattach record for instance %q", cfg.Instance.Name)
			}
			out := struct {
				store.Record
				EngineAlive bool `json:"engine_alive"`
			}{Record: rec, EngineAlive: detector.Identity{PID: rec.PID, StartUnix: rec.StartUnix}.Alive()}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(b))
			return nil
		},
	}
}
