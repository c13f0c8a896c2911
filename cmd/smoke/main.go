// Command smoke checks connectivity against a live media server: it lists
// the library catalog and the remote accounts, and verifies a fresh
// catalog resolves against itself.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"joinarr.org/internal/config"
	"joinarr.org/internal/directory"
	"joinarr.org/internal/directory/emby"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	client := emby.New(cfg.MediaURL, cfg.MediaToken, emby.WithTimeout(cfg.MediaTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	catalog, err := client.ListLibraries(ctx)
	if err != nil {
		log.Fatalf("list libraries: %v", err)
	}
	names := make([]string, 0, len(catalog))
	for _, name := range catalog {
		names = append(names, name)
	}
	if got := directory.Resolve(names, catalog); len(got) != len(catalog) {
		log.Fatalf("catalog does not resolve against itself: %d of %d", len(got), len(catalog))
	}

	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		log.Fatalf("list accounts: %v", err)
	}

	fmt.Printf("✅ media server smoke test passed: %d libraries, %d accounts\n", len(catalog), len(accounts))
}
