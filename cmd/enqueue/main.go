// Command enqueue is a one-shot CLI that inserts a single collection
// job directly via the job store, for seeding a repository from an
// operator's shell without going through the HTTP control surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/thep200/ghcollector/cfg"
	"github.com/thep200/ghcollector/internal/jobstore"
	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/pkg/db"
)

func main() {
	repoFlag := flag.String("repo", "", "owner/name of the repository to enqueue")
	priority := flag.Int("priority", 0, "job priority; higher claims first")
	flag.Parse()

	parts := strings.SplitN(*repoFlag, "/", 2)
	if len(parts) != 2 || model.ValidateFullNameParts(parts[0], parts[1]) != nil {
		fmt.Println("usage: enqueue -repo=owner/name [-priority=N]")
		os.Exit(1)
	}

	// Resolve honors GHCOLLECTOR_CONFIG_SOURCE=mock, letting a smoke
	// test exercise this CLI against the fixed in-memory config without
	// a yaml file on disk.
	loader, err := cfg.Resolve()
	if err != nil {
		fmt.Printf("failed to resolve config loader: %v\n", err)
		os.Exit(1)
	}
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	pg, err := db.NewPostgres(config)
	if err != nil {
		fmt.Printf("failed to construct postgres wrapper: %v\n", err)
		os.Exit(1)
	}

	jobs := jobstore.New(pg, config.Worker.MaxFailures)
	job, err := jobs.Enqueue(context.Background(), parts[0], parts[1], *priority)
	if err != nil {
		fmt.Printf("failed to enqueue job: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("enqueued job %d for %s/%s at priority %d (status=%s)\n", job.ID, job.Owner, job.Name, job.Priority, job.Status)
}
