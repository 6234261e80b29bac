// Command server runs the turfpoint game server: the authenticated action
// API, the tick archiver with its compressed logs, and the live map
// websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"turfpoint.gg/internal/engine"
	persistlog "turfpoint.gg/internal/persistence/log"
	"turfpoint.gg/internal/store"
	"turfpoint.gg/internal/tick"
	"turfpoint.gg/internal/transport/httpapi"
	"turfpoint.gg/internal/transport/observer"
	"turfpoint.gg/internal/tuning"
)

func main() {
	var (
		addr            = flag.String("addr", ":8080", "http listen address")
		configDir       = flag.String("configs", "./configs", "config directory")
		dataDir         = flag.String("data", "./data", "runtime data directory")
		tuningPath      = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		tickInterval    = flag.Duration("tick_interval", 0, "run a tick automatically at this interval (0 = admin-triggered only)")
		disableTickLog  = flag.Bool("disable_tick_log", false, "disable the compressed tick archive log")
		disableAuditLog = flag.Bool("disable_audit_log", false, "disable the compressed action audit log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	_ = os.MkdirAll(*dataDir, 0o755)
	st, err := store.Open(filepath.Join(*dataDir, "game.db"))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	hub := observer.NewHub(st, logger)

	var tickLog *persistlog.TickLogger
	if !*disableTickLog {
		tickLog = persistlog.NewTickLogger(*dataDir)
		defer tickLog.Close()
	}

	eng := engine.New(st, tune, logger, hub)
	if !*disableAuditLog {
		auditLog := persistlog.NewAuditLogger(*dataDir)
		defer auditLog.Close()
		eng.SetAuditLog(auditLog)
	}

	archiver := tick.New(st, tune, logger, hub, tickLog)

	api, err := httpapi.NewServer(st, eng, archiver, logger)
	if err != nil {
		logger.Fatalf("http api: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	go hub.Run(ctx)

	if *tickInterval > 0 {
		go func() {
			t := time.NewTicker(*tickInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if _, err := archiver.Run(ctx); err != nil && ctx.Err() == nil {
						logger.Printf("scheduled tick failed: %v", err)
					}
				}
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writeMetrics(rw, r.Context(), st)
	})
	mux.HandleFunc("/v1/observer/ws", hub.Handler())
	api.Register(mux)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (mode=%s)", *addr, tune.Mode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// writeMetrics emits the minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, ctx context.Context, st *store.Store) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	g, err := st.Game(ctx)
	if err != nil {
		http.Error(rw, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	fmt.Fprintf(rw, "# HELP turfpoint_game_tick Current game tick.\n")
	fmt.Fprintf(rw, "# TYPE turfpoint_game_tick gauge\n")
	fmt.Fprintf(rw, "turfpoint_game_tick %d\n", g.Tick)

	paused := 0
	if g.Paused() {
		paused = 1
	}
	fmt.Fprintf(rw, "# HELP turfpoint_game_paused Whether tick processing is paused.\n")
	fmt.Fprintf(rw, "# TYPE turfpoint_game_paused gauge\n")
	fmt.Fprintf(rw, "turfpoint_game_paused %d\n", paused)

	points, err := st.Points(ctx)
	if err == nil {
		factions, ferr := st.Factions(ctx)
		if ferr == nil {
			names := make(map[string]string, len(factions))
			for _, f := range factions {
				names[f.ID] = f.Name
			}
			owned := map[string]int{}
			neutral := 0
			for _, p := range points {
				if p.Neutral() {
					neutral++
					continue
				}
				owned[names[p.AcquiredBy]]++
			}
			fmt.Fprintf(rw, "# HELP turfpoint_points_owned Points held per faction (empty label = neutral).\n")
			fmt.Fprintf(rw, "# TYPE turfpoint_points_owned gauge\n")
			for _, f := range factions {
				fmt.Fprintf(rw, "turfpoint_points_owned{faction=%q} %d\n", f.Name, owned[f.Name])
			}
			fmt.Fprintf(rw, "turfpoint_points_owned{faction=%q} %d\n", "", neutral)
		}
	}

	total, pending, err := st.CountActions(ctx)
	if err == nil {
		fmt.Fprintf(rw, "# HELP turfpoint_actions_total Actions accepted since the game began.\n")
		fmt.Fprintf(rw, "# TYPE turfpoint_actions_total counter\n")
		fmt.Fprintf(rw, "turfpoint_actions_total %d\n", total)

		fmt.Fprintf(rw, "# HELP turfpoint_actions_pending Queued actions awaiting the next tick.\n")
		fmt.Fprintf(rw, "# TYPE turfpoint_actions_pending gauge\n")
		fmt.Fprintf(rw, "turfpoint_actions_pending %d\n", pending)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
