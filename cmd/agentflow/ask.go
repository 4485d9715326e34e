package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/thomsch1/deepresearch/config"
	"github.com/thomsch1/deepresearch/research"
)

// =============================================================================
// 🔎 ask 命令 — 单次深度研究，直接驱动 Orchestrator，无需起 HTTP 服务
// =============================================================================

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	loops := fs.Int("loops", 0, "Max research loops (0 = config default)")
	quiet := fs.Bool("quiet", false, "Suppress phase progress output, print only the final answer")
	fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: deepresearch ask [--config path] [--loops n] <question>")
		os.Exit(1)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	lmProvider := buildLMProvider(cfg, logger)
	if lmProvider == nil {
		fmt.Fprintln(os.Stderr, "no reasoning model configured (research.lm_api_key is empty)")
		os.Exit(1)
	}
	orchestrator := buildResearchOrchestrator(cfg, lmProvider, logger, nil)

	params := research.NewParams(cfg.Research, 0, *loops, "", research.TierLow, cfg.Research.QualityThresholdDefault, false)
	session := research.NewSession(research.NewSessionID(), question, params)

	done := make(chan struct{})
	if !*quiet {
		go printProgress(session, done)
	} else {
		close(done)
	}

	answer, err := orchestrator.Run(context.Background(), session)
	if !*quiet {
		<-done
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "research session failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(answer.Text)
	if len(answer.CitationLabelsUsed) > 0 {
		fmt.Printf("\nSources cited: %s\n", strings.Join(answer.CitationLabelsUsed, ", "))
	}
	fmt.Printf("Confidence: %.2f\n", answer.Confidence)
}

// printProgress relays Session.Events to stderr as one line per phase
// transition, until the channel is closed or a Finalizing event arrives.
func printProgress(session *research.Session, done chan<- struct{}) {
	defer close(done)
	start := time.Now()
	for ev := range session.Events {
		fmt.Fprintf(os.Stderr, "[%6.1fs] %-10s loop=%d %s (%d)\n",
			time.Since(start).Seconds(), ev.Phase, ev.LoopIndex, ev.Kind, ev.Count)
		if ev.Kind == research.EventFinalizing {
			return
		}
	}
}
