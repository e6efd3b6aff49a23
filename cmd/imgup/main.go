package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"imgdrop/internal/client"
)

func main() {
	server := flag.String("server", envOr("IMGDROP_SERVER", "http://localhost:8080"), "imgdrop server URL")
	concurrency := flag.Int("c", 4, "maximum concurrent uploads")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: imgup [-server URL] [-c N] FILE...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	files, err := client.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := client.New(*server).UploadAll(ctx, files, *concurrency)
	for i, res := range results {
		if res != nil {
			fmt.Printf("✓ %s → %s (%d bytes)\n", files[i].Name, res.ImageURL, res.Size)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
