//go:build ignore

// Package main generates a synthetic skill manifest for benchmarking the
// discovery pipeline at catalog sizes no real project reaches.
// Usage: go run scripts/generate-test-corpus.go -skills 500 -output testdata/bench/skills.yaml
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numSkills = flag.Int("skills", 500, "Number of skills to generate")
	toolsPer  = flag.Int("tools", 4, "Tools per skill")
	output    = flag.String("output", "testdata/bench/skills.yaml", "Output manifest path")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var verbs = []string{
	"list", "get", "create", "delete", "update", "fetch", "convert",
	"summarize", "deploy", "restart", "scale", "query", "export", "import",
	"validate", "encrypt", "compress", "translate", "schedule", "notify",
}

var domains = []string{
	"pods", "containers", "invoices", "emails", "tickets", "clusters",
	"datasets", "backups", "certificates", "queues", "dashboards",
	"currencies", "documents", "images", "users", "repositories",
	"pipelines", "alerts", "schemas", "secrets",
}

var adjectives = []string{
	"active", "stale", "pending", "archived", "remote", "local",
	"expired", "tagged", "scheduled", "failed",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	var sb strings.Builder
	sb.WriteString("version: 1\n\nskills:\n")

	for i := 0; i < *numSkills; i++ {
		domain := domains[rng.Intn(len(domains))]
		name := fmt.Sprintf("%s-skill-%04d", domain, i)
		fmt.Fprintf(&sb, "  %s:\n", name)
		fmt.Fprintf(&sb, "    source: \"/usr/local/bin/%s\"\n", name)
		sb.WriteString("    runtime: native\n")
		fmt.Fprintf(&sb, "    description: \"manage %s %s\"\n",
			adjectives[rng.Intn(len(adjectives))], domain)
		sb.WriteString("    tools:\n")
		for j := 0; j < *toolsPer; j++ {
			verb := verbs[rng.Intn(len(verbs))]
			fmt.Fprintf(&sb, "      - name: %s-%d\n", verb, j)
			fmt.Fprintf(&sb, "        description: \"%s %s %s\"\n",
				verb, adjectives[rng.Intn(len(adjectives))], domain)
			sb.WriteString("        parameters:\n")
			sb.WriteString("          - name: target\n")
			sb.WriteString("            type: string\n")
			sb.WriteString("            required: true\n")
		}
		sb.WriteString("    instances:\n")
		sb.WriteString("      default: {}\n")
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, []byte(sb.String()), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d skills (%d tools) to %s\n", *numSkills, *numSkills**toolsPer, *output)
}
