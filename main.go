package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	clientDir := flag.String("client", "public", "Path to static client directory")
	dbPath := flag.String("db", "arena.db", "Path to SQLite account database")
	logPath := flag.String("log", "arena.log", "Path to log file")
	flag.Parse()

	InitLogger(*logPath)
	defer SyncLogger()

	db, err := OpenDB(*dbPath)
	if err != nil {
		Log.Fatalw("open database", "path", *dbPath, "err", err)
	}
	defer db.Close()

	hub := NewHub(db)
	go hub.Run()

	mux := SetupRoutes(hub, *clientDir)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		Log.Infow("arena server listening", "addr", *addr, "client", *clientDir)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			Log.Fatalw("listen", "err", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	Log.Info("shutting down")
	server.Close()
	hub.scheduler.Stop()
}
