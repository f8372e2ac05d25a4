package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/metasecret/metasecret/internal/objects"
	"github.com/metasecret/metasecret/internal/secret"
	"github.com/metasecret/metasecret/internal/server"
	"github.com/metasecret/metasecret/internal/store"
	"github.com/metasecret/metasecret/internal/sync"
	"github.com/metasecret/metasecret/internal/vaultaction"
)

var (
	addrFlag   = flag.String("addr", ":7777", "Address to listen on")
	dbPathFlag = flag.String("db", "", "Custom database path (for testing multiple instances)")
)

func main() {
	flag.Parse()

	dbPath := *dbPathFlag
	if dbPath == "" {
		dbPath = os.Getenv("META_DB_PATH")
	}
	if dbPath == "" {
		var err error
		dbPath, err = defaultDBPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create data dir: %v\n", err)
		os.Exit(1)
	}

	boltStore, err := store.OpenBoltStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer boltStore.Close()

	var s store.Store = boltStore
	obj := objects.NewPersistentObject(s)
	vault := objects.NewPersistentVault(obj)
	shared := objects.NewPersistentSharedSecret(obj)
	globalIndex := objects.NewPersistentGlobalIndex(obj)
	engine := vaultaction.NewEngine(vault, globalIndex)
	completion := secret.NewCompletionClient(shared)

	router := sync.NewRouter(vault, shared, engine, completion)
	srv := server.New(router, *addrFlag)

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("metasecretd listening on %s (db: %s)\n", *addrFlag, dbPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
	}
}

func defaultDBPath() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "windows":
		dataDir = os.Getenv("APPDATA")
		if dataDir == "" {
			dataDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support")
	default:
		dataDir = os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(dataDir, "metasecretd", "vault.db"), nil
}
