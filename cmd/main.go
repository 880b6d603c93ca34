package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	keyFile string
	debug   bool
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "popcli",
		Short:         "Follow and drive Proof-of-Personhood LAOs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.keyFile, "key-file", "popcore.key", "identity key file, created if missing")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "log debug messages")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "timeout of each server request")

	root.AddCommand(
		newKeygenCmd(flags),
		newHashCmd(),
		newElectionKeysCmd(),
		newCreateLaoCmd(flags),
		newWatchCmd(flags),
	)
	return root
}

func newLogger(debug bool) *slog.Logger {
	logger := pterm.DefaultLogger
	if debug {
		logger = *logger.WithLevel(pterm.LogLevelDebug)
	}
	return slog.New(pterm.NewSlogHandler(&logger))
}

func printBanner() {
	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("P", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("o", pterm.FgDarkGray.ToStyle()),
		putils.LettersFromStringWithStyle("P", pterm.FgRed.ToStyle()),
	).Render()
}
