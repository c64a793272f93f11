// Package main provides the entry point for the quill CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quillreader/quill/internal/chunker"
	"github.com/quillreader/quill/internal/config"
	"github.com/quillreader/quill/speech"
	"github.com/quillreader/quill/speech/audio"
	"github.com/quillreader/quill/speech/cache"
	"github.com/quillreader/quill/speech/engines/mock"
	"github.com/quillreader/quill/speech/engines/piper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string

	rootCmd = &cobra.Command{
		Use:           "quill [FILE]",
		Short:         "Read text files aloud with a neural voice",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(1),
		RunE:          execute,
	}
)

func execute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", args[0], err)
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	chunks := chunker.Split(string(text))
	if len(chunks) == 0 {
		return fmt.Errorf("%s contains nothing to read", args[0])
	}

	store, err := cache.New(cfg.CacheDir, cfg.CacheMaxBytes, log.Default())
	if err != nil {
		return err
	}

	var engine speech.Engine
	switch cfg.Engine {
	case "mock":
		engine = mock.New()
	default:
		engine = piper.New(cfg.Piper.Binary, cfg.Piper.Model, cfg.SampleRate)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.EnsureLoaded(ctx); err != nil {
		if errors.Is(err, speech.ErrEngineNotInstalled) {
			return fmt.Errorf("the %s engine is not installed; set speech.piper.binary and speech.piper.model in your config", cfg.Engine)
		}
		return err
	}

	player, err := audio.NewPlayer(cfg.SampleRate)
	if err != nil {
		return err
	}

	// The controller calls send with its lock held, so the channel has to
	// absorb bursts without blocking. Dropping is preferable to deadlock.
	msgs := make(chan tea.Msg, 64)
	send := func(m tea.Msg) {
		select {
		case msgs <- m:
		default:
			log.Warn("dropping speech event", "msg", fmt.Sprintf("%T", m))
		}
	}

	ctrl := speech.NewController(engine, store, send)
	go func() {
		<-ctx.Done()
		player.Stop()
		ctrl.Stop()
	}()

	speakErr := make(chan error, 1)
	go func() {
		speakErr <- ctrl.Speak(speech.Request{
			BookID:    path,
			ChapterID: "body",
			Chunks:    chunks,
			Voice:     cfg.Voice,
			Rate:      cfg.Rate,
		})
	}()

	for {
		select {
		case err := <-speakErr:
			if err != nil {
				return err
			}
		case msg := <-msgs:
			switch m := msg.(type) {
			case speech.ChunkReadyMsg:
				go func() {
					if err := player.PlayFile(m.AudioPath); err != nil {
						log.Error("playback failed", "chunk", m.Index, "err", err)
					}
					_ = ctrl.NextChunk()
				}()
			case speech.StateMsg:
				if m.Snapshot.State == speech.StateIdle {
					return ctx.Err()
				}
			case speech.SpeechErrorMsg:
				return m.Err
			}
		}
	}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

// setupLog directs logging to the file named by QUILL_LOG, or to stderr at
// warn level when unset.
func setupLog() (func() error, error) {
	if path := os.Getenv("QUILL_LOG"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		log.SetLevel(log.DebugLevel)
		return f.Close, nil
	}
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
	return func() error { return nil }, nil
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().String("engine", "", "speech engine (piper or mock)")
	rootCmd.Flags().String("voice", "", "voice or speaker id")
	rootCmd.Flags().Float64("rate", 0, "speaking rate multiplier")

	_ = viper.BindPFlag("speech.engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("speech.voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("speech.rate", rootCmd.Flags().Lookup("rate"))

	rootCmd.AddCommand(cacheCmd, configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "quill")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "quill")}, dirs...)
	}

	if c := os.Getenv("QUILL_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("quill")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("quill")
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "quill.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
