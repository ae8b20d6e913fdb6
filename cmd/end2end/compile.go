package main

import (
	"github.com/gaoyiyeah/end2end/lm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile-lm IN OUT",
		Short: "Convert a language model to the binary format",
		Long: `Read an ARPA (or already compiled) language model and write it in
the binary format, which loads faster.`,
		Args: cobra.ExactArgs(2),
		RunE: a.runCompile,
	}
}

func (a *app) runCompile(cmd *cobra.Command, args []string) error {
	model, err := lm.LoadFile(args[0])
	if err != nil {
		return err
	}
	counts := make([]int, model.Order())
	for i := range counts {
		counts[i] = model.Count(i + 1)
	}
	a.logger.Info("loaded language model",
		zap.Int("order", model.Order()),
		zap.Int("vocab", model.VocabSize()),
		zap.Ints("counts", counts))
	if err := lm.SaveFile(args[1], model); err != nil {
		return err
	}
	a.logger.Info("wrote language model", zap.String("path", args[1]))
	return nil
}
