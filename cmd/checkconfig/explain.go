package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kneutral-org/checkconfig/internal/logging"
	"github.com/kneutral-org/checkconfig/internal/ruleset"
)

type explainOptions struct {
	host    string
	ruleset string
	service string
}

// ruleExplanation is the JSON form of one rule's evaluation.
type ruleExplanation struct {
	Index     int    `json:"index"`
	RuleID    string `json:"ruleId,omitempty"`
	Matched   bool   `json:"matched"`
	MatchType string `json:"matchType"`
	Reason    string `json:"reason"`
	Value     any    `json:"value,omitempty"`
}

func newExplainCmd(root *rootOptions) *cobra.Command {
	opts := &explainOptions{}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show how every rule of a ruleset matches a host",
		Long: `Evaluate each rule of a ruleset against a host (and optionally a service
description or item) and report whether and why it matched.

Examples:
  checkconfig explain --host node1 --ruleset clustered_services --service "Filesystem /shared"
  checkconfig explain --host node1 --ruleset checkgroup_parameters:temperature --service /dev/sda`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd)
			if err != nil {
				return err
			}
			return runExplain(cmd.Context(), e, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "host or cluster")
	cmd.Flags().StringVar(&opts.ruleset, "ruleset", "", "ruleset name")
	cmd.Flags().StringVar(&opts.service, "service", "", "service description or item")

	return cmd
}

func runExplain(ctx context.Context, e *env, opts *explainOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.host == "" || opts.ruleset == "" {
		return errors.New("--host and --ruleset are required")
	}

	snap, err := e.loadSnapshot()
	if err != nil {
		return err
	}
	id, err := snap.Directory.Identity(ctx, opts.host)
	if err != nil {
		return err
	}
	rs, ok := snap.Rules.Ruleset(opts.ruleset)
	if !ok {
		return fmt.Errorf("ruleset %s is not defined", opts.ruleset)
	}

	target := ruleset.ForHost(id)
	if opts.service != "" {
		target = ruleset.ForService(id, opts.service)
	}

	logger := logging.RulesetLogger(e.logger, rs.Name)
	evaluations, err := e.resolver(snap, nil).Evaluator().Explain(rs, target)
	if err != nil {
		logger.Error().Err(err).Msg("explain failed")
		return err
	}

	out := make([]ruleExplanation, 0, len(evaluations))
	matched := 0
	for _, ev := range evaluations {
		item := ruleExplanation{
			Index:   ev.Index,
			RuleID:  ev.RuleID,
			Matched: ev.Result.Matched,
			Reason:  ev.Result.Reason,
			Value:   ev.Value,
		}
		item.MatchType = string(ev.Result.MatchType)
		if ev.Result.Matched {
			matched++
		}
		out = append(out, item)
	}
	logger.Debug().Int("rules", len(out)).Int("matched", matched).Msg("ruleset explained")

	return writeJSON(e.out, out)
}
