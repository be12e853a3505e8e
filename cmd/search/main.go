// Command search runs a one-shot query against the VaultPilot API and prints
// ranked results to stdout.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

func main() {
	var (
		apiURL    = flag.String("api", "http://localhost:8080", "API base URL")
		k         = flag.Int("k", 5, "number of results")
		topic     = flag.String("topic", "", "restrict to a topic")
		fileTypes = flag.String("types", "", "comma-separated file types")
		from      = flag.String("from", "", "modified on or after (YYYY-MM-DD)")
		to        = flag.String("to", "", "modified on or before (YYYY-MM-DD)")
		expand    = flag.Bool("expand", false, "expand the query before embedding")
		asJSON    = flag.Bool("json", false, "print the raw JSON response")
		timeout   = flag.Duration("timeout", 30*time.Second, "request timeout")
	)
	flag.Parse()

	query := strings.Join(flag.Args(), " ")
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: search [flags] <query>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	body := map[string]any{"query": query, "k": *k, "expand_query": *expand}
	if *topic != "" {
		body["topic"] = *topic
	}
	if *fileTypes != "" {
		body["file_types"] = strings.Split(*fileTypes, ",")
	}
	if *from != "" {
		body["from"] = *from
	}
	if *to != "" {
		body["to"] = *to
	}

	data, _ := json.Marshal(body)
	client := &http.Client{Timeout: *timeout}
	resp, err := client.Post(*apiURL+"/api/search", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "api error (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(raw)))
		os.Exit(1)
	}

	if *asJSON {
		os.Stdout.Write(raw)
		return
	}

	var res domain.SearchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
		os.Exit(1)
	}
	printResult(res)
}

func printResult(res domain.SearchResult) {
	fmt.Printf("query: %s\n", res.Query)
	if res.ExpandedQuery != "" {
		fmt.Printf("expanded: %s\n", res.ExpandedQuery)
	}
	if res.Topic != "" {
		fmt.Printf("topic: %s\n", res.Topic)
	}
	if len(res.FiltersApplied) > 0 {
		fmt.Printf("filters: %s\n", strings.Join(res.FiltersApplied, ", "))
	}
	if res.Degraded {
		fmt.Printf("degraded stages: %s\n", strings.Join(res.DegradedStages, ", "))
	}
	fmt.Println()

	for i, c := range res.Chunks {
		fmt.Printf("%d. %s  [%s]\n", i+1, c.Heading, c.ID())
		fmt.Printf("   final=%.3f similarity=%.3f cross=%.3f\n", c.FinalScore, c.Similarity, c.CrossScore)
		fmt.Printf("   %s\n\n", excerpt(c.Content, 200))
	}

	if len(res.Related) > 0 {
		fmt.Println("related notes:")
		for _, r := range res.Related {
			fmt.Printf("  - %s (via %s)\n", r.Title, r.Via)
		}
	}
}

func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
