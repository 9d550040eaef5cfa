package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/monocle-dev/oncall/internal/rotation"
)

// rosterFile is the YAML document read by "rotation preview".
//
//	members:
//	  - id: 1
//	    name: alice
//	  - id: 2
//	    name: bob
type rosterFile struct {
	Members []rosterMember `yaml:"members"`
}

type rosterMember struct {
	ID   uint   `yaml:"id"`
	Name string `yaml:"name"`
}

type previewDay struct {
	Date     string `yaml:"date"`
	MemberID uint   `yaml:"member_id"`
	Name     string `yaml:"name,omitempty"`
}

type previewOptions struct {
	roster    string
	start     string
	days      int
	frequency int
	unit      string
}

func newRotationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotation",
		Short: "Inspect rotations without a database",
	}

	cmd.AddCommand(newPreviewCmd())

	return cmd
}

func newPreviewCmd() *cobra.Command {
	opts := previewOptions{}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the on-call member for each day as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(opts.roster)
			if err != nil {
				return fmt.Errorf("open roster: %w", err)
			}
			defer f.Close()

			return runPreview(f, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.roster, "roster", "roster.yaml", "YAML file listing roster members in rotation order")
	cmd.Flags().StringVar(&opts.start, "start", time.Now().Format(time.DateOnly), "first day of the rotation (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.days, "days", 14, "number of days to print")
	cmd.Flags().IntVar(&opts.frequency, "frequency", 1, "number of units per shift")
	cmd.Flags().StringVar(&opts.unit, "unit", string(rotation.UnitWeekly), "daily, weekly, biweekly or monthly")

	return cmd
}

func runPreview(in io.Reader, out io.Writer, opts previewOptions) error {
	var roster rosterFile
	if err := yaml.NewDecoder(in).Decode(&roster); err != nil {
		return fmt.Errorf("decode roster: %w", err)
	}

	start, err := time.Parse(time.DateOnly, opts.start)
	if err != nil {
		return fmt.Errorf("invalid --start %q: %w", opts.start, err)
	}
	if opts.days <= 0 {
		return fmt.Errorf("--days must be positive, got %d", opts.days)
	}

	unit, err := rotation.ParseUnit(opts.unit)
	if err != nil {
		return err
	}

	ids := make([]uint, 0, len(roster.Members))
	names := make(map[uint]string, len(roster.Members))
	for _, m := range roster.Members {
		ids = append(ids, m.ID)
		names[m.ID] = m.Name
	}

	end := start.AddDate(0, 0, opts.days-1)
	entries, err := rotation.Generate(ids, start, end, rotation.Cadence{Frequency: opts.frequency, Unit: unit})
	if err != nil {
		return err
	}

	days := make([]previewDay, 0, len(entries))
	for _, e := range entries {
		days = append(days, previewDay{
			Date:     e.Date.Format(time.DateOnly),
			MemberID: e.MemberID,
			Name:     names[e.MemberID],
		})
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(days); err != nil {
		return err
	}
	return enc.Close()
}
