// Command meet-client joins a meeting session from the terminal: typed
// lines are submitted as utterances, incoming transcripts are printed
// with their translations.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/meetlingo/meetlingo/internal/client"
	"github.com/meetlingo/meetlingo/internal/protocol"
)

func main() {
	_ = godotenv.Load()

	var (
		server   = flag.String("server", envOr("MEETLINGO_SERVER", "ws://localhost:8080"), "server base URL (ws:// or wss://)")
		code     = flag.String("code", "", "6-digit session code")
		speaker  = flag.String("name", envOr("MEETLINGO_NAME", "Anonymous"), "speaker name")
		language = flag.String("lang", envOr("MEETLINGO_LANG", "en"), "language spoken")
	)
	flag.Parse()

	if *code == "" {
		fmt.Fprintln(os.Stderr, "usage: meet-client -code 123456 [-name you] [-lang en]")
		os.Exit(2)
	}

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent, err := client.New(client.Config{
		URL:         strings.TrimRight(*server, "/") + "/ws/session/" + *code,
		SpeakerName: *speaker,
		Logger:      log,
		OnTranscript: func(t *protocol.Transcript) {
			printTranscript(t, *language)
		},
		OnState: func(s client.State) {
			switch s {
			case client.StateConnected:
				fmt.Println("* connected")
			case client.StateReconnecting:
				fmt.Println("* connection lost, reconnecting...")
			case client.StateClosed:
				fmt.Println("* session ended")
			case client.StateFailed:
				fmt.Println("* connection lost, please create a new session")
			}
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "! %v\n", err)
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if err := agent.Submit(line, *language); err != nil {
				fmt.Fprintf(os.Stderr, "! %v\n", err)
			}
		}
	}()

	if err := <-done; err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}

// printTranscript prefers the reader's language, falling back to the
// original text.
func printTranscript(t *protocol.Transcript, preferred string) {
	text := t.OriginalText
	if tr, ok := t.Translations[preferred]; ok && tr != "" {
		text = tr
	}
	marker := ""
	if t.Partial {
		marker = " [partial]"
	}
	fmt.Printf("[%d] %s: %s%s\n", t.Sequence, t.SpeakerName, text, marker)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
