package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Conceptual-Machines/magda-timeline-go/agents/arrangement"
	"github.com/Conceptual-Machines/magda-timeline-go/config"
	"github.com/Conceptual-Machines/magda-timeline-go/engine"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
	"github.com/Conceptual-Machines/magda-timeline-go/host/sandbox"
	"github.com/Conceptual-Machines/magda-timeline-go/llm"
)

// newArrangement builds a small two-track arrangement to edit
func newArrangement() *sandbox.Host {
	h := sandbox.New(2)
	h.AddClip(sandbox.ClipState{Track: 0, Start: 0, End: 4, Looping: true})
	h.AddClip(sandbox.ClipState{Track: 1, Start: 0, End: 16, Audio: true, Material: 16})
	return h
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: Could not load .env file: %v", err)
		log.Println("   Continuing with environment variables...")
	}

	cfg := config.Default()
	cfg.LoadEnv()
	if cfg.OpenAIAPIKey == "" && cfg.GeminiAPIKey == "" {
		log.Fatal("❌ ERROR: neither OPENAI_API_KEY nor GEMINI_API_KEY is set in environment!")
	}

	ctx := context.Background()
	provider, err := llm.NewProviderFactory(cfg.OpenAIAPIKey, cfg.GeminiAPIKey).GetProvider(ctx, cfg.Model, "")
	if err != nil {
		log.Fatalf("❌ ERROR: %v", err)
	}

	testQuestions := []string{
		"loop the drums on track 1 for 4 bars",
		"cut the clip on track 2 into one-bar pieces",
		"split the clip on track 2 at bar 3 and move the second half to bar 9",
	}
	tracks := []host.TrackID{0, 1}

	for n, question := range testQuestions {
		fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Printf("Test %d/%d: %s\n", n+1, len(testQuestions), question)
		fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

		h := newArrangement()
		agent, err := arrangement.NewArrangementAgent(cfg, provider, engine.New(h, cfg.Engine))
		if err != nil {
			log.Fatalf("❌ ERROR: %v", err)
		}

		startTime := time.Now()
		result, err := agent.GenerateEdits(ctx, question, tracks, "")
		if err != nil {
			log.Printf("❌ Error: %v", err)
			if result == nil {
				continue
			}
		}

		fmt.Printf("✅ Done! Duration: %v\n\n", time.Since(startTime))
		fmt.Printf("Actions (%d):\n", len(result.Actions))
		for j, action := range result.Actions {
			actionJSON, _ := json.MarshalIndent(action, "", "  ")
			fmt.Printf("  [%d] %s\n", j+1, string(actionJSON))
		}

		fmt.Printf("\nArrangement:\n")
		if err := h.Save(os.Stdout, cfg.Engine.TimeSignature); err != nil {
			log.Printf("❌ Error: %v", err)
		}

		if n < len(testQuestions)-1 {
			time.Sleep(1 * time.Second)
		}
	}

	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("✅ All tests completed!\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
}
