package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/bystac/pokernetwork/pkg/server"
)

func main() {
	var (
		dbPath     string
		debugLevel string
		logFile    string
		maxJoined  int
	)
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database file (created if missing)")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.StringVar(&logFile, "logfile", "", "If set, write logs to this file")
	flag.IntVar(&maxJoined, "maxjoined", 0, "Server-wide seated+observer cap (0 = default)")
	flag.Parse()

	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "pokernetwork.sqlite")
	}

	database, err := server.OpenDatabase(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init db: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:    logFile,
		DebugLevel: debugLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}

	factory := server.New(database, server.Config{
		MaxJoined: maxJoined,
		Log:       logBackend.Logger("FCTY"),
	})

	log := logBackend.Logger("SRVR")
	log.Infof("table server up, db at %s", dbPath)

	// Drain on SIGINT/SIGTERM: running hands finish, nothing new deals.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	factory.Shutdown()
	for _, t := range factory.Tables() {
		if t.IsStationary() {
			t.Destroy()
		}
	}
	log.Infof("table server down")
}
