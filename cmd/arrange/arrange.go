package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Conceptual-Machines/magda-timeline-go/config"
	"github.com/Conceptual-Machines/magda-timeline-go/engine"
	"github.com/Conceptual-Machines/magda-timeline-go/host/sandbox"
	"github.com/Conceptual-Machines/magda-timeline-go/metrics"
)

var (
	c         = flag.String("c", "", "config file name (YAML); defaults are used when empty")
	i         = flag.String("i", "", "input arrangement (YAML)")
	o         = flag.String("o", "", "output arrangement (YAML); defaults to the input file")
	smfOut    = flag.String("smf", "", "also export the result as a standard MIDI file")
	op        = flag.String("op", "", "operation: lengthen, split, slice or move")
	clips     = flag.String("clips", "", `comma-separated clip ids, e.g. "id 1,id 2"`)
	length    = flag.String("length", "", "target length in bars:beats (lengthen, move)")
	positions = flag.String("positions", "", "comma-separated split positions in bar|beat, relative to each clip")
	size      = flag.String("size", "", "slice duration in bars:beats")
	position  = flag.String("position", "", "move target in bar|beat")
)

// request is one engine operation as given on the command line
type request struct {
	Op        string
	Clips     []string
	Length    string
	Positions []string
	Size      string
	Position  string
}

// apply runs the requested operation on e
func apply(ctx context.Context, e *engine.Engine, req request) (*engine.Result, error) {
	if len(req.Clips) == 0 {
		return nil, fmt.Errorf("no clips given")
	}
	switch req.Op {
	case "lengthen":
		return e.LengthenClips(ctx, req.Clips, req.Length)
	case "split":
		return e.SplitClips(ctx, req.Clips, req.Positions)
	case "slice":
		return e.SliceClips(ctx, req.Clips, req.Size)
	case "move":
		return e.MoveClips(ctx, req.Clips, req.Position, req.Length)
	}
	return nil, fmt.Errorf("unknown operation %q", req.Op)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Main() error {
	if *i == "" {
		return fmt.Errorf("-i is required")
	}
	if *o == "" {
		*o = *i
	}

	cfg, err := config.Load(*c)
	if err != nil {
		return fmt.Errorf("failed to read config: %v", err)
	}
	flush, err := metrics.InitSentry(cfg.SentryDSN, "arrange")
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

	result, err := apply(context.Background(), e, request{
		Op:        *op,
		Clips:     splitList(*clips),
		Length:    *length,
		Positions: splitList(*positions),
		Size:      *size,
		Position:  *position,
	})
	if result != nil {
		if perr := printResult(os.Stdout, result); perr != nil {
			return perr
		}
	}
	if err != nil && result == nil {
		return err
	}

	// A partial edit still changed the arrangement, so it is saved before
	// the error is reported.
	if saveErr := save(h, arr, *o); saveErr != nil {
		return saveErr
	}
	if *smfOut != "" {
		f, ferr := os.Create(*smfOut)
		if ferr != nil {
			return fmt.Errorf("failed to create %v: %v", *smfOut, ferr)
		}
		defer f.Close()
		if ferr := h.WriteSMF(f, arr.TimeSignature); ferr != nil {
			return fmt.Errorf("failed to write %v: %v", *smfOut, ferr)
		}
	}
	return err
}

// printResult writes the result as indented JSON
func printResult(w io.Writer, result *engine.Result) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %v", err)
	}
	if _, err := fmt.Fprintln(w, string(out)); err != nil {
		return fmt.Errorf("failed to print result: %v", err)
	}
	return nil
}

func save(h *sandbox.Host, arr *sandbox.Arrangement, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %v: %v", name, err)
	}
	defer f.Close()
	if err := h.Save(f, arr.TimeSignature); err != nil {
		return fmt.Errorf("failed to write %v: %v", name, err)
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️  Warning: Could not load .env file: %v", err)
	}
	flag.Parse()
	err := Main()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
