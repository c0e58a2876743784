package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/vetcheck/internal/config"
	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/emergency"
	"github.com/ashureev/vetcheck/internal/engine"
	"github.com/ashureev/vetcheck/internal/store"
	"github.com/ashureev/vetcheck/internal/triage"
)

type extractResult struct {
	Species  string   `json:"species" yaml:"species"`
	Breed    string   `json:"breed" yaml:"breed"`
	Size     string   `json:"size,omitempty" yaml:"size,omitempty"`
	AgeYears *int     `json:"age_years" yaml:"age_years"`
	WeightKg *float64 `json:"weight_kg" yaml:"weight_kg"`
	Symptoms []string `json:"symptoms" yaml:"symptoms"`
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <message...>",
		Short: "Show the profile signals found in a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := triage.Extract(engine.Sanitize(strings.Join(args, " ")))
			symptoms := []string(s.Symptoms)
			if symptoms == nil {
				symptoms = []string{}
			}
			return opts.print(cmd.OutOrStdout(), extractResult{
				Species:  s.Species,
				Breed:    s.Breed,
				Size:     triage.BreedSize(s.Breed),
				AgeYears: s.AgeYears,
				WeightKg: s.WeightKg,
				Symptoms: symptoms,
			})
		},
	}
}

type classifyResult struct {
	Urgency         string   `json:"urgency" yaml:"urgency"`
	Display         string   `json:"display" yaml:"display"`
	Recommendation  string   `json:"recommendation" yaml:"recommendation"`
	MatchedKeywords []string `json:"matched_keywords" yaml:"matched_keywords"`
	Emergency       bool     `json:"emergency" yaml:"emergency"`
	Instructions    []string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var prior string
	cmd := &cobra.Command{
		Use:   "classify <message...>",
		Short: "Classify the urgency of a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := domain.ParseUrgency(prior)
			if !ok {
				return fmt.Errorf("invalid --prior %q", prior)
			}
			msg := engine.Sanitize(strings.Join(args, " "))
			u := triage.Classify(msg, nil, p)
			symptoms := triage.Extract(msg).Symptoms

			matched := triage.MatchedKeywords(msg)
			if matched == nil {
				matched = []string{}
			}
			res := classifyResult{
				Urgency:         u.String(),
				Display:         u.DisplayName(),
				Recommendation:  u.Recommendation(),
				MatchedKeywords: matched,
				Emergency:       emergency.IsEmergencyCase(u, symptoms),
			}
			if res.Emergency {
				res.Instructions = emergency.Instructions(u, symptoms)
			}
			return opts.print(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&prior, "prior", "LOW", "urgency already reached by the session")
	return cmd
}

type sweepResult struct {
	Cutoff time.Time `json:"cutoff" yaml:"cutoff"`
	DryRun bool      `json:"dry_run" yaml:"dry_run"`
	Closed []string  `json:"closed" yaml:"closed"`
	Purged int64     `json:"purged" yaml:"purged"`
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var (
		databaseURL string
		idle        time.Duration
		retention   time.Duration
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close idle sessions and purge old closed ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if databaseURL == "" || idle == 0 {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if databaseURL == "" {
					databaseURL = cfg.DatabaseURL
				}
				if idle == 0 {
					idle = cfg.SessionIdleTimeout
				}
			}
			if idle < 0 || retention < 0 {
				return fmt.Errorf("durations must not be negative")
			}

			st, err := store.Open(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer st.Close()

			now := time.Now()
			res := sweepResult{Cutoff: now.Add(-idle).UTC(), DryRun: dryRun}
			if dryRun {
				res.Closed, err = st.IdleBefore(ctx, res.Cutoff)
			} else {
				res.Closed, err = st.DeleteIdleBefore(ctx, res.Cutoff)
			}
			if err != nil {
				return fmt.Errorf("sweep idle sessions: %w", err)
			}
			if res.Closed == nil {
				res.Closed = []string{}
			}
			if !dryRun {
				res.Purged, err = st.PurgeClosedBefore(ctx, now.Add(-retention))
				if err != nil {
					return err
				}
			}
			return opts.print(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "SQLite path or postgres:// DSN (default $DATABASE_URL)")
	cmd.Flags().DurationVar(&idle, "idle", 0, "close sessions idle for longer than this (default $SESSION_IDLE_TIMEOUT)")
	cmd.Flags().DurationVar(&retention, "retention", engine.ClosedRetention, "purge closed sessions older than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list idle sessions without closing them")
	return cmd
}
