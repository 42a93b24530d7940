package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:           "reelsmith",
		Short:         "Turn a plain text script into a vertical reel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	root.PersistentFlags().String("config", "reelsmith.toml", "Config file")
	root.PersistentFlags().String("out", "", "Output directory")
	root.PersistentFlags().String("font", "", "TTF font for overlays")
	root.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")

	create := &cobra.Command{
		Use:   "create <script.txt>",
		Short: "Generate all assets and render the reel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], false)
		},
	}
	create.Flags().String("name", "", "Reel name (defaults to the script file name)")
	create.Flags().String("theme", "", "Visual theme override")

	compose := &cobra.Command{
		Use:   "compose <reel-name>",
		Short: "Recompose a reel from assets already in its workspace",
		Long: "Recompose reuses the parsed script, audio, speech marks and visuals\n" +
			"in out/<reel-name>/. Replace any scene video or image there and compose\n" +
			"picks it up, re-synchronizing durations against the audio.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], true)
		},
	}

	script := &cobra.Command{
		Use:   "script <story idea>",
		Short: "Write a formatted reel script from a story idea",
		Long: "Script asks the language model to turn a one-line story idea into\n" +
			"the plain text script format create consumes, and writes it under the\n" +
			"output directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, args[0])
		},
	}
	script.Flags().String("name", "", "Reel name (defaults to the first words of the idea)")
	script.Flags().String("theme", "", "Visual theme override")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve reel generation over HTTP",
		Long: "Serve exposes POST /generate, GET /reels, GET /status/{name} and\n" +
			"static /videos/ for the output directory. Generation runs in the\n" +
			"background; poll the status endpoint for completion.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	serve.Flags().String("addr", ":8080", "Listen address")

	root.AddCommand(create, compose, script, serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
