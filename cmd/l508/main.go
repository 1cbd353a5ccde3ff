package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/banshee-data/l508/internal/capture"
	"github.com/banshee-data/l508/internal/config"
	"github.com/banshee-data/l508/internal/l508"
	"github.com/banshee-data/l508/internal/monitoring"
	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/transport"
	"github.com/banshee-data/l508/internal/units"
	"github.com/banshee-data/l508/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON client config (default "+config.DefaultConfigPath+" if present)")
	listen      = flag.String("listen", "localhost:8508", "Debug HTTP listen address (empty disables)")
	devMode     = flag.Bool("dev", false, "Use a simulated L508 instead of the BLE adapter")
	replayPath  = flag.String("replay", "", "Replay a capture database through the simulated device")
	sessionID   = flag.String("session", "", "Capture session to replay or summarise (default latest)")
	address     = flag.String("address", "", "Only connect to the device with this BLE address")
	capturePath = flag.String("capture", "", "Record notifications to this sqlite file")
	pageB       = flag.Bool("page-b", false, "Route 57 09 00 31 frames to the radar decoder")
	summaryPath = flag.String("summary", "", "Print the summary of a capture database and exit")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		fmt.Println(version.Description)
		return
	}

	if *summaryPath != "" {
		if err := printSummary(os.Stdout, *summaryPath, *sessionID); err != nil {
			log.Fatalf("summary: %v", err)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.ClientConfig, error) {
	cfg := config.EmptyClientConfig()
	path := *configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		}
	}
	if path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		log.Printf("loaded config from %s", path)
	}

	applyFlags(cfg, flag.CommandLine)
	return cfg, cfg.Validate()
}

// applyFlags overrides cfg with flags that were set explicitly.
func applyFlags(cfg *config.ClientConfig, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "address":
			v := f.Value.String()
			cfg.DeviceAddress = &v
		case "capture":
			v := f.Value.String()
			cfg.CapturePath = &v
		case "page-b":
			v := f.Value.String() == "true"
			cfg.RoutePageB = &v
		}
	})
}

// newTransport picks the simulated, replayed or real BLE transport.
func newTransport(ctx context.Context, cfg *config.ClientConfig) (transport.Transport, string, error) {
	switch {
	case *replayPath != "":
		store, err := capture.Open(*replayPath)
		if err != nil {
			return nil, "", err
		}
		defer store.Close()
		frames, err := store.Frames(ctx, *sessionID)
		if err != nil {
			return nil, "", err
		}
		log.Printf("replaying %d frames from %s", len(frames), *replayPath)
		sim := transport.NewSimulator(transport.SimulatorOptions{Frames: capture.TimedFrames(frames)})
		return sim.Transport(), "replay", nil
	case *devMode:
		return transport.NewSimulator(transport.SimulatorOptions{}).Transport(), "simulator", nil
	default:
		return transport.NewBluetooth(bluetooth.DefaultAdapter, cfg.GetDeviceAddress()), "bluetooth", nil
	}
}

func run(cfg *config.ClientConfig) error {
	log.Printf("%s starting", version.String())

	// Create a wait group for the HTTP server and state logger routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr, mode, err := newTransport(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	var store *capture.Store
	var recorder *capture.Recorder
	if path := cfg.GetCapturePath(); path != "" {
		store, err = capture.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()
		id, err := store.StartSession(ctx, mode, time.Now())
		if err != nil {
			return err
		}
		recorder = capture.NewRecorder(store, id, cfg.GetCaptureBuffer(), nil)
		defer func() {
			recorder.Close()
			log.Printf("capture session %s: %d frames written, %d dropped",
				recorder.SessionID(), recorder.Written(), recorder.Dropped())
		}()
		log.Printf("capturing session %s to %s", recorder.SessionID(), path)
	}

	var rec l508.FrameRecorder
	if recorder != nil {
		rec = recorder
	}
	ctrl := l508.NewController(l508.OptionsFromConfig(cfg, tr, rec))
	defer ctrl.Close()

	// log lifecycle notices and threat changes
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, updates := ctrl.Subscribe()
		defer ctrl.Unsubscribe(id)
		logUpdates(ctx, updates, cfg.GetSpeedUnits())
	}()

	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mux := http.NewServeMux()
			ctrl.AttachAdminRoutes(mux)
			if store != nil {
				store.AttachAdminRoutes(mux)
			}
			serve(ctx, mux)
		}()
	}

	if err := ctrl.Connect(ctx); err != nil {
		log.Printf("connect failed: %v", err)
	}

	<-ctx.Done()
	ctrl.Disconnect()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}

func serve(ctx context.Context, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}

	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("debug server listening on http://%s/debug/", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}

// logUpdates writes notices and changes in the set of active threats.
func logUpdates(ctx context.Context, updates <-chan l508.Update, speedUnits string) {
	last := ""
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Notice != nil {
				monitoring.Logf("notice: %s %s", u.Notice.Kind, u.Notice.Message)
			}
			if line := describeThreats(u.Snapshot.Radar, speedUnits); line != last {
				monitoring.Logf("radar: %s", line)
				last = line
			}
		case <-ctx.Done():
			return
		}
	}
}

// describeThreats renders the active targets of a radar result on one
// line, e.g. "#1 left 62.5m 12.2m/s".
func describeThreats(r *l508.Result[protocol.RadarFrame], speedUnits string) string {
	if r == nil {
		return "no data"
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	line := ""
	for _, t := range r.Data.Targets {
		if t.ThreatLevel == 0 {
			continue
		}
		if line != "" {
			line += ", "
		}
		line += fmt.Sprintf("#%d %s %.1fm %s", t.ID, sideName(t.ThreatSide), t.Range, units.FormatSpeed(t.Speed, speedUnits))
	}
	if line == "" {
		return "clear"
	}
	return line
}

func sideName(side int) string {
	switch side {
	case 1:
		return "left"
	case 2:
		return "right"
	default:
		return "behind"
	}
}

func printSummary(w io.Writer, path, session string) error {
	store, err := capture.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	sum, err := store.Summarize(context.Background(), session)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
