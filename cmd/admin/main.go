package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "botcraft.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "intent":
			intentCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	worlds, err := listWorlds(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, w := range worlds {
		fmt.Printf("%s\tjournals=%d\tindex=%t\n", w.id, w.journals, w.indexed)
	}
}

type worldEntry struct {
	id       string
	journals int
	indexed  bool
}

func listWorlds(base string) ([]worldEntry, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var out []worldEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(base, e.Name())
		files, err := persistlog.TickFiles(dir)
		if err != nil {
			return nil, err
		}
		_, statErr := os.Stat(filepath.Join(dir, "index.sqlite"))
		out = append(out, worldEntry{id: e.Name(), journals: len(files), indexed: statErr == nil})
	}
	return out, nil
}
