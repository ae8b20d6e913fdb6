package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func (a *app) newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score WORD...",
		Short: "Print language model scores for a sentence",
		Long: `Print the natural-log language model score of every word in a sentence,
followed by the total. Out-of-vocabulary words receive the OOV score.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runScore,
	}
	addDecoderFlags(cmd)
	return cmd
}

func (a *app) runScore(cmd *cobra.Command, args []string) error {
	decoder, err := a.newDecoder(cmd)
	if err != nil {
		return err
	}
	if decoder.Model() == nil {
		return errors.New("score: no language model (use --lm)")
	}
	return decoder.PrintScores(cmd.OutOrStdout(), args)
}
