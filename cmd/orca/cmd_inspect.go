package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/FairForge/orca/internal/actor"
	"github.com/FairForge/orca/internal/state"
)

type inspectOutput struct {
	Profile string       `json:"profile"`
	Flags   []state.Flag `json:"preflight_flags"`
	Stats   state.Stats  `json:"stats"`
}

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Validate a state file and summarize its population",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("state")
			jsonOut, _ := cmd.Flags().GetBool("json")

			st, err := state.ReadFromPath(path)
			if err != nil {
				return err
			}
			if _, err := actor.BuildAll(st); err != nil {
				return err
			}

			out := inspectOutput{Profile: st.Profile.Name, Flags: st.PreflightFlags, Stats: st.Stats()}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "profile:  %s\n", out.Profile)
			fmt.Fprintf(w, "persons:  %d (%d present, %d absent)\n", out.Stats.Persons, out.Stats.Present, out.Stats.Absent)
			fmt.Fprintf(w, "models:   %d basic, %d markov\n", out.Stats.Basic, out.Stats.Markov)
			for _, f := range out.Flags {
				fmt.Fprintf(w, "flag:     %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringP("state", "s", "state.json", "State file to read")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
