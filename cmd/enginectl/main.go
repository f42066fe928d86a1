// Command enginectl opens the storage engine against a data file and serves
// the read-only admin/introspection gRPC surface, with the background
// checkpoint scheduler running underneath. It never parses or executes SQL
// (that layer is out of scope for this engine); it exists to run and
// inspect the storage core the way cmd/server/main.go runs the reference
// engine's SQL server.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/quill-run/minidb/internal/admin"
	"github.com/quill-run/minidb/internal/config"
	"github.com/quill-run/minidb/internal/engine"
)

var (
	flagConfig = flag.String("config", "", "path to YAML config file (defaults applied if empty)")
	flagData   = flag.String("data", "./data/engine.db", "path to the engine's data file")
	flagGRPC   = flag.String("grpc", "", "admin gRPC listen address, overrides config admin.addr")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if *flagGRPC != "" {
		cfg.Admin.Enabled = true
		cfg.Admin.Addr = *flagGRPC
	}

	e, err := engine.Open(cfg, *flagData)
	if err != nil {
		log.Fatalf("open engine: %v", err)
	}
	defer e.Close()

	if cfg.Admin.Enabled {
		lis, err := net.Listen("tcp", cfg.Admin.Addr)
		if err != nil {
			log.Fatalf("admin listen: %v", err)
		}
		gs := grpc.NewServer()
		admin.Register(gs, admin.New(e))
		go func() {
			log.Printf("admin gRPC listening on %s", cfg.Admin.Addr)
			if err := gs.Serve(lis); err != nil {
				log.Printf("admin serve error: %v", err)
			}
		}()
		defer gs.GracefulStop()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("shutting down")
}
