package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"

	"github.com/Conceptual-Machines/magda-timeline-go/agents/arrangement"
	"github.com/Conceptual-Machines/magda-timeline-go/config"
	"github.com/Conceptual-Machines/magda-timeline-go/engine"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
	"github.com/Conceptual-Machines/magda-timeline-go/host/sandbox"
	"github.com/Conceptual-Machines/magda-timeline-go/mcpserver"
	"github.com/Conceptual-Machines/magda-timeline-go/metrics"
)

var (
	c    = flag.String("c", "", "config file name (YAML); defaults are used when empty")
	i    = flag.String("i", "", "arrangement to serve (YAML)")
	save = flag.Bool("save", false, "write the arrangement back to -i after every edit")
)

func Main() error {
	if *i == "" {
		return fmt.Errorf("-i is required")
	}
	cfg, err := config.Load(*c)
	if err != nil {
		return fmt.Errorf("failed to read config: %v", err)
	}
	flush, err := metrics.InitSentry(cfg.SentryDSN, "arrangement-mcp")
	if err != nil {
		log.Printf("⚠️  %v", err)
	}
	defer flush()

	in, err := os.Open(*i)
	if err != nil {
		return fmt.Errorf("failed to open %v: %v", *i, err)
	}
	h, arr, err := sandbox.Load(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("failed to load %v: %v", *i, err)
	}

	e, err := engine.New(h, cfg.Engine).WithTimeSignature(arr.TimeSignature)
	if err != nil {
		return err
	}

	tracks := make([]host.TrackID, arr.Tracks)
	for n := range tracks {
		tracks[n] = host.TrackID(n)
	}

	opts := mcpserver.Options{Tracks: tracks}
	if *save {
		var mu sync.Mutex
		opts.AfterEdit = func() error {
			mu.Lock()
			defer mu.Unlock()
			f, err := os.Create(*i)
			if err != nil {
				return err
			}
			defer f.Close()
			return h.Save(f, arr.TimeSignature)
		}
	}

	s := mcpserver.New(arrangement.NewToolbox(e), opts)
	return mcpserver.Serve(s, cfg.MCPServerURL)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️  Warning: Could not load .env file: %v", err)
	}
	flag.Parse()
	if err := Main(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
