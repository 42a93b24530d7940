package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/forPelevin/reelsmith/internal/pipeline"
	"github.com/forPelevin/reelsmith/internal/server"
	"github.com/forPelevin/reelsmith/internal/types"
)

// baseConfig builds the flag- and environment-driven part of the config.
// Callers set command-specific fields and then merge the file config on top.
func baseConfig(cmd *cobra.Command) (pipeline.Config, pipeline.FileConfig, error) {
	configPath, _ := cmd.Flags().GetString("config")
	outDir, _ := cmd.Flags().GetString("out")
	font, _ := cmd.Flags().GetString("font")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg := pipeline.Config{
		OutDir:   outDir,
		FontPath: font,

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),

		Log: newLogger(verbose),
	}
	fc, err := pipeline.LoadFileConfig(configPath)
	if err != nil {
		return pipeline.Config{}, pipeline.FileConfig{}, err
	}
	return cfg, fc, nil
}

func run(cmd *cobra.Command, arg string, reuse bool) error {
	cfg, fc, err := baseConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Reuse = reuse

	if reuse {
		cfg.ReelName = arg
	} else {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		cfg.ScriptPath = abs
		cfg.ReelName, _ = cmd.Flags().GetString("name")
		if cfg.ReelName == "" {
			cfg.ReelName = pipeline.ReelNameFromScript(abs)
		}
		if theme, _ := cmd.Flags().GetString("theme"); theme != "" {
			cfg.Theme = theme
		}
	}

	cfg = cfg.Merge(fc)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 1*time.Hour)
	defer cancelTimeout()

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}

	printSummary(res)
	return nil
}

func runScript(cmd *cobra.Command, idea string) error {
	cfg, fc, err := baseConfig(cmd)
	if err != nil {
		return err
	}
	cfg.ReelName, _ = cmd.Flags().GetString("name")
	if theme, _ := cmd.Flags().GetString("theme"); theme != "" {
		cfg.Theme = theme
	}
	cfg = cfg.Merge(fc)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, 5*time.Minute)
	defer cancelTimeout()

	path, err := pipeline.GenerateScript(ctx, cfg, idea)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runServe(cmd *cobra.Command) error {
	cfg, fc, err := baseConfig(cmd)
	if err != nil {
		return err
	}
	cfg = cfg.Merge(fc)
	addr, _ := cmd.Flags().GetString("addr")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(cfg, pipeline.GenerateScript, pipeline.Run, cfg.Log)
	return srv.ListenAndServe(ctx, addr)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printSummary(res pipeline.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		t.SetStyle(table.StyleDefault)
	} else {
		t.SetStyle(table.StyleRounded)
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
	})

	t.AppendHeader(table.Row{"#", "Character", "Dialogue", "Audio", "Visual", "Sync"})
	for _, sc := range res.Manifest.Scenes {
		t.AppendRow(table.Row{
			sc.Number,
			sc.Character,
			sc.Dialogue,
			fmtSec(sc.AudioSec),
			fmtSec(sc.VisualSec),
			syncCell(sc),
		})
	}
	t.Render()

	fmt.Printf("\n%s (run %s, %s)\n", res.FinalPath, res.RunID, res.Elapsed.Round(time.Second))
}

func fmtSec(s float64) string {
	if s == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fs", s)
}

func syncCell(sc types.ManifestScene) string {
	switch sc.SyncMode {
	case "stretch":
		return fmt.Sprintf("stretch x%.2f", 1/sc.StretchFactor)
	case "stretch-freeze":
		return fmt.Sprintf("stretch+freeze %.1fs", sc.FreezeSec)
	default:
		return sc.SyncMode
	}
}
