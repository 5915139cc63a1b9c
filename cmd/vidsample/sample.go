package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/five82/vidsample/internal/analysis"
	"github.com/five82/vidsample/internal/capture"
	"github.com/five82/vidsample/internal/config"
	"github.com/five82/vidsample/internal/discovery"
	vserrors "github.com/five82/vidsample/internal/errors"
	"github.com/five82/vidsample/internal/logging"
	"github.com/five82/vidsample/internal/metrics"
	"github.com/five82/vidsample/internal/processing"
	"github.com/five82/vidsample/internal/reporter"
	"github.com/five82/vidsample/internal/source"
	"github.com/five82/vidsample/internal/store"
	"github.com/five82/vidsample/internal/util"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample and analyse a video file or a directory of videos",
	Example: `  vidsample sample -i movie.mkv -o results/
  vidsample sample -i /videos -o results/ --preset sparse
  vidsample sample -i movie.mkv -o results/ --resume --metrics-addr :9090`,
	RunE: runSample,
}

func init() {
	f := sampleCmd.Flags()
	f.StringP("input", "i", "", "input video file or directory containing video files")
	f.StringP("output", "o", "", "output directory for the result database and logs")
	f.StringP("log-dir", "l", "", "log directory (defaults to OUTPUT/logs)")
	f.String("store", "", "result database path (defaults to OUTPUT/"+config.DefaultStoreName+")")
	f.String("preset", "", "sampling preset: sparse, standard, dense")
	f.Float64("target-fps", config.DefaultTargetFPS, "sampled processing rate")
	f.Int("first-frame", config.DefaultFirstFrame, "first frame to analyse; negative resumes after frame |n|")
	f.Int("queue-capacity", config.DefaultQueueCapacity, "decoded frames allowed in flight")
	f.Int("checkpoint-interval", config.DefaultCheckpointInterval, "analysed frames between partial saves")
	f.Int("seek-threshold", config.DefaultSeekThreshold, "largest forward gap stepped through instead of seeking")
	f.Bool("resume", false, "continue each video after the last frame stored for it")
	f.Bool("json", false, "emit NDJSON progress events instead of terminal output")
	f.BoolP("verbose", "v", false, "enable verbose output for troubleshooting")
	f.Bool("no-log", false, "disable log file creation")
	f.String("log-format", "", "structured log format: text or json (defaults to json with --json)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

// bindSampleFlags maps command-line flags onto configuration keys.
func bindSampleFlags(cmd *cobra.Command, v *viper.Viper) error {
	bindings := map[string]string{
		config.KeyInput:              "input",
		config.KeyOutputDir:          "output",
		config.KeyLogDir:             "log-dir",
		config.KeyStorePath:          "store",
		config.KeyPreset:             "preset",
		config.KeyTargetFPS:          "target-fps",
		config.KeyFirstFrame:         "first-frame",
		config.KeyQueueCapacity:      "queue-capacity",
		config.KeyCheckpointInterval: "checkpoint-interval",
		config.KeySeekThreshold:      "seek-threshold",
		"resume":                     "resume",
		"json":                       "json",
		"verbose":                    "verbose",
		"no_log":                     "no-log",
		"log_format":                 "log-format",
		"metrics_addr":               "metrics-addr",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func runSample(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	if err := bindSampleFlags(cmd, v); err != nil {
		return err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.InputPath == "" {
		return fmt.Errorf("input path is required (-i/--input)")
	}

	inputPath, err := filepath.Abs(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	inputInfo, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("input path does not exist: %s", inputPath)
	}
	cfg.InputPath = inputPath

	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.OutputDir, err = filepath.Abs(cfg.OutputDir); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	if err := util.EnsureDirectory(cfg.OutputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.OutputDir, "logs")
	}

	verbose := v.GetBool("verbose")
	fileLog, err := logging.Setup(cfg.LogDir, verbose, v.GetBool("no_log"))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer func() { _ = fileLog.Close() }()

	logFormat, err := logging.ParseFormat(v.GetString("log_format"))
	if err != nil {
		return err
	}
	if v.GetString("log_format") == "" && v.GetBool("json") {
		logFormat = logging.FormatJSON
	}
	// Structured library logs go to the run log; without one only errors
	// reach stderr so they don't tear the progress bar.
	if fileLog != nil {
		logging.Init(fileLog.Level(), fileLog.Writer(), logFormat)
	} else {
		logging.Init(logging.LevelError, os.Stderr, logFormat)
	}
	logger := logging.Global()

	var filesToProcess []string
	if inputInfo.IsDir() {
		found, err := discovery.FindVideoFilesWithLogging(inputPath, logger)
		if vserrors.IsNoFilesFound(err) {
			return fmt.Errorf("no video files found in %s", inputPath)
		}
		if err != nil {
			return fmt.Errorf("failed to discover video files: %w", err)
		}
		filesToProcess = found.Files
		fileLog.Info("Discovered %d video files in %s (%d skipped)", len(found.Files), inputPath, found.SkippedCount)
	} else {
		filesToProcess = []string{inputPath}
		fileLog.Info("Processing single file: %s", inputPath)
	}

	fileLog.Info("Output directory: %s", cfg.OutputDir)
	fileLog.Info("Result database: %s", cfg.GetStorePath())
	fileLog.Info("Sampling: target=%.2f fps, first frame=%d, checkpoint every %d frames",
		cfg.TargetFPS, cfg.FirstFrame, cfg.CheckpointInterval)
	if cfg.Preset != nil {
		fileLog.Info("Preset: %s", *cfg.Preset)
	}

	st, err := store.Open(cfg.GetStorePath())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var rep reporter.Reporter
	if v.GetBool("json") {
		rep = reporter.NewJSONReporter()
	} else {
		rep = reporter.NewTerminalReporter(verbose)
	}

	if addr := v.GetString("metrics_addr"); addr != "" {
		m := metrics.New()
		srv, err := metrics.StartServer(addr, m, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		fileLog.Info("Serving metrics on %s", srv.Addr())
		rep = reporter.NewCompositeReporter(rep, m)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := processing.ProcessVideos[analysis.Luma](ctx, processing.Options{
		Config:   cfg,
		Store:    st,
		Open:     openVideo,
		Resume:   v.GetBool("resume"),
		Reporter: rep,
		Logger:   logger,
	}, analysis.NewLumaAnalyzer(), filesToProcess)
	if err != nil {
		if vserrors.IsCancelled(err) {
			fileLog.Warn("Sampling cancelled; rerun with --resume to continue")
		}
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fileLog.Error("%s: %v", r.Filename, r.Err)
		} else {
			fileLog.Info("%s: %d frames sampled in %s (run %s)", r.Filename, r.Sampled, r.Duration.Round(time.Second), r.RunID)
		}
	}
	if failed == len(results) {
		return vserrors.NewOperationFailedError("no files were sampled successfully", nil)
	}
	return nil
}

func openVideo(path string) (source.Decoder, error) {
	dec, err := capture.Open(path)
	if err != nil {
		return nil, err
	}
	return dec, nil
}
