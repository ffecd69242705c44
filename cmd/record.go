package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stepcap/stepcap/internal/browser"
	"github.com/stepcap/stepcap/internal/bus"
	"github.com/stepcap/stepcap/internal/config"
	"github.com/stepcap/stepcap/internal/control"
	"github.com/stepcap/stepcap/internal/coordinator"
	"github.com/stepcap/stepcap/internal/logging"
	"github.com/stepcap/stepcap/internal/protocol"
	"github.com/stepcap/stepcap/internal/store"
)

// recordCmd launches Chrome with the full capture pipeline attached.
var recordCmd = &cobra.Command{
	Use:   "record [url]",
	Short: "Launch the browser and start the capture pipeline",
	Long: `Launch a Chrome instance with recorders attached to every tab and the
control endpoint listening for UI collaborators.

No session starts recording by itself: create and start one through the
control endpoint, then interact with the page. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().Bool("headless", false, "run Chrome headless")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(args) > 0 {
		cfg.Browser.StartURL = args[0]
	}
	if headless, _ := cmd.Flags().GetBool("headless"); headless {
		cfg.Browser.Headless = true
	}

	kv, err := store.OpenSQLite(cfg.StoragePath(projectDir))
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}
	defer kv.Close()
	st := store.New(kv)

	// The config file is the source of truth for recording settings; sync
	// it into the stored document so recorders see it.
	if err := st.SaveSettings(ctx, recordingSettings(cfg)); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	b := bus.New()
	coord := coordinator.New(st, nil, b, cfg.CoordinatorConfig())

	mgr, err := browser.NewManager(cfg.Browser, browser.Deps{Store: st, Bus: b, Coord: coord})
	if err != nil {
		return err
	}
	defer mgr.Close()
	coord.SetTabs(mgr)

	go coord.Run(ctx)
	go mgr.Watch(ctx)

	// Hot-reload recording settings on config edits.
	watcher, err := config.NewWatcher(projectDir, func(fresh *config.Config) {
		if err := st.SaveSettings(context.Background(), recordingSettings(fresh)); err != nil {
			logging.Error("settings reload: %v", err)
		}
	})
	if err != nil {
		logging.Warn("config watcher unavailable: %v", err)
	} else {
		go watcher.Run(ctx)
	}

	srv := control.NewServer(coord, mgr, b)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Control.ListenAddr)
	}()

	fmt.Printf("stepcap recording pipeline up; control endpoint ws://%s/control\n", cfg.Control.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		fmt.Println("\nshutting down")
		cancel()
		// Leave no session marked recording behind.
		if err := coord.StopRecording(context.Background()); err != nil {
			logging.Error("final stop: %v", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func recordingSettings(c *config.Config) protocol.Settings {
	return protocol.Settings{
		AutoScreenshot:   c.Recording.AutoScreenshot,
		BlurPasswords:    c.Recording.BlurPasswords,
		CaptureScrolling: c.Recording.CaptureScrolling,
	}
}
