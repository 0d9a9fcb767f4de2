package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type enhanceRequest struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	FilePath   string `json:"file_path,omitempty"`
	LineNumber int    `json:"line_number,omitempty"`
}

type streamLine struct {
	Delta     string `json:"delta"`
	Done      bool   `json:"done"`
	Error     string `json:"error"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type enhancedComment struct {
	ImprovedContent string   `json:"improved_content"`
	Severity        string   `json:"severity"`
	Pros            []string `json:"pros"`
	Cons            []string `json:"cons"`
	Suggestions     []string `json:"suggestions"`
}

type healthResponse struct {
	Engine *struct {
		Adapter  string  `json:"adapter"`
		State    string  `json:"state"`
		Progress float64 `json:"progress"`
	} `json:"engine"`
}

type result struct {
	Sample    string `json:"sample"`
	Chars     int    `json:"chars"`
	Run       int    `json:"run"`
	FirstMs   int64  `json:"first_chunk_ms"`
	ElapsedMs int64  `json:"elapsed_ms"`
	WallMs    int64  `json:"wall_ms"`
	Chunks    int    `json:"chunks"`
	OutChars  int    `json:"out_chars"`
	Error     string `json:"error,omitempty"`
}

func main() {
	url := flag.String("url", "http://localhost:8090", "API base URL")
	apiKey := flag.String("api-key", "", "API key (optional)")
	runs := flag.Int("runs", 3, "Number of runs per sample")
	quality := flag.Bool("quality", false, "Quality mode: show input/output for each sample (1 run, no timing table)")
	jsonOut := flag.String("json", "", "Write results to JSON file (e.g. results.json)")
	warmup := flag.Bool("warmup", false, "Run one warmup request per sample before measuring")
	flag.Parse()

	baseURL := strings.TrimRight(*url, "/")
	client := &http.Client{}

	engine := discoverEngine(client, baseURL, *apiKey)

	if *quality {
		runQualityMode(client, baseURL, *apiKey, engine)
		return
	}

	fmt.Printf("Benchmarking against %s using engine: %s (%d runs per sample", baseURL, engine, *runs)
	if *warmup {
		fmt.Print(", warmup enabled")
	}
	fmt.Println(")")

	var results []result
	var failures int
	for _, sample := range Samples {
		if *warmup {
			fmt.Printf("  Warming up %s...", sample.Name)
			w := benchmark(client, baseURL, *apiKey, sample, 0)
			if w.Error != "" {
				fmt.Printf(" FAILED (%s)\n", w.Error)
			} else {
				fmt.Printf(" %dms (discarded)\n", w.WallMs)
			}
		}
		for run := 1; run <= *runs; run++ {
			fmt.Printf("  Running %s (run %d/%d)...", sample.Name, run, *runs)
			r := benchmark(client, baseURL, *apiKey, sample, run)
			results = append(results, r)
			if r.Error != "" {
				fmt.Printf(" FAILED (%s)\n", r.Error)
				failures++
			} else {
				fmt.Printf(" first %dms, total %dms\n", r.FirstMs, r.WallMs)
			}
		}
	}

	fmt.Println()
	printTable(results)
	printSummary(results)

	if *jsonOut != "" {
		if err := writeJSON(*jsonOut, results, baseURL, engine); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
		} else {
			fmt.Printf("\nResults written to %s\n", *jsonOut)
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func newRequest(method, url, apiKey string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return req, nil
}

// discoverEngine waits for the engine to become ready and returns its name.
func discoverEngine(client *http.Client, baseURL, apiKey string) string {
	deadline := time.Now().Add(10 * time.Minute)
	for {
		req, err := newRequest(http.MethodGet, baseURL+"/api/health", apiKey, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating request: %v\n", err)
			os.Exit(1)
		}
		resp, err := client.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching health: %v\n", err)
			os.Exit(1)
		}
		var h healthResponse
		err = json.NewDecoder(resp.Body).Decode(&h)
		resp.Body.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error decoding health: %v\n", err)
			os.Exit(1)
		}
		if h.Engine == nil {
			fmt.Fprintln(os.Stderr, "Server reports no engine")
			os.Exit(1)
		}
		switch h.Engine.State {
		case "ready":
			return h.Engine.Adapter
		case "failed":
			fmt.Fprintf(os.Stderr, "Engine %s failed to initialize\n", h.Engine.Adapter)
			os.Exit(1)
		}
		if time.Now().After(deadline) {
			fmt.Fprintln(os.Stderr, "Engine did not become ready in time")
			os.Exit(1)
		}
		fmt.Printf("Waiting for %s (%.0f%%)...\n", h.Engine.Adapter, h.Engine.Progress*100)
		time.Sleep(2 * time.Second)
	}
}

func benchmark(client *http.Client, baseURL, apiKey string, sample Sample, run int) result {
	r := result{Sample: sample.Name, Chars: len(sample.Content), Run: run}
	fail := func(err string) result {
		r.Error = err
		return r
	}

	payload, _ := json.Marshal(enhanceRequest{
		ID:         fmt.Sprintf("%s-%d", sample.Name, run),
		Content:    sample.Content,
		FilePath:   sample.FilePath,
		LineNumber: sample.LineNumber,
	})
	req, err := newRequest(http.MethodPost, baseURL+"/api/enhance", apiKey, strings.NewReader(string(payload)))
	if err != nil {
		return fail(err.Error())
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fail(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fail(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var l streamLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			return fail(err.Error())
		}
		switch {
		case l.Error != "":
			return fail(l.Error)
		case l.Done:
			r.ElapsedMs = l.ElapsedMs
		default:
			if r.Chunks == 0 {
				r.FirstMs = time.Since(start).Milliseconds()
			}
			r.Chunks++
			r.OutChars += len(l.Delta)
		}
	}
	if err := sc.Err(); err != nil {
		return fail(err.Error())
	}
	r.WallMs = time.Since(start).Milliseconds()
	return r
}

func printTable(results []result) {
	fmt.Println("| Sample | Chars | Run | First (ms) | Elapsed (ms) | Wall (ms) | Chunks | Out Chars |")
	fmt.Println("|--------|-------|-----|------------|--------------|-----------|--------|-----------|")
	for _, r := range results {
		if r.Error != "" {
			fmt.Printf("| %-6s | %5d | %d | %10s | %12s | %9s | %6s | %9s |\n",
				r.Sample, r.Chars, r.Run, "FAIL", "-", "-", "-", "-")
			continue
		}
		fmt.Printf("| %-6s | %5d | %d | %10d | %12d | %9d | %6d | %9d |\n",
			r.Sample, r.Chars, r.Run, r.FirstMs, r.ElapsedMs, r.WallMs, r.Chunks, r.OutChars)
	}
}

func runQualityMode(client *http.Client, baseURL, apiKey, engine string) {
	fmt.Printf("Quality test against %s using engine: %s\n", baseURL, engine)
	fmt.Println(strings.Repeat("=", 72))

	var failures int
	for i, sample := range QualitySamples {
		fmt.Printf("\n--- %d/%d: %s (%d chars) ---\n", i+1, len(QualitySamples), sample.Name, len(sample.Content))
		fmt.Printf("IN:  %s\n", sample.Content)

		payload, _ := json.Marshal(enhanceRequest{ID: sample.Name, Content: sample.Content, FilePath: sample.FilePath, LineNumber: sample.LineNumber})
		req, err := newRequest(http.MethodPost, baseURL+"/api/enhance?stream=false", apiKey, strings.NewReader(string(payload)))
		if err != nil {
			fmt.Printf("ERR: %s\n", err)
			failures++
			continue
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("ERR: %s\n", err)
			failures++
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			fmt.Printf("ERR: HTTP %d: %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
			failures++
			continue
		}

		var ec enhancedComment
		err = json.NewDecoder(resp.Body).Decode(&ec)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("ERR: %s\n", err)
			failures++
			continue
		}

		fmt.Printf("OUT: %s\n", ec.ImprovedContent)
		for _, s := range ec.Suggestions {
			fmt.Printf("     - %s\n", s)
		}
		severity := ec.Severity
		if severity == "" {
			severity = "none"
		}
		fmt.Printf("     [%dms, %d->%d chars, severity %s]\n",
			time.Since(start).Milliseconds(), len(sample.Content), len(ec.ImprovedContent), severity)
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 72))
	fmt.Printf("Done: %d/%d passed\n", len(QualitySamples)-failures, len(QualitySamples))
	if failures > 0 {
		os.Exit(1)
	}
}

func printSummary(results []result) {
	var ok []result
	for _, r := range results {
		if r.Error == "" {
			ok = append(ok, r)
		}
	}

	failed := len(results) - len(ok)

	if len(ok) == 0 {
		fmt.Printf("\nSummary: all %d runs failed\n", len(results))
		return
	}

	var totalFirst, totalWall int64
	minFirst, maxWall := ok[0].FirstMs, ok[0].WallMs
	maxSample := ok[0].Sample

	for _, r := range ok {
		totalFirst += r.FirstMs
		totalWall += r.WallMs
		if r.FirstMs < minFirst {
			minFirst = r.FirstMs
		}
		if r.WallMs > maxWall {
			maxWall = r.WallMs
			maxSample = r.Sample
		}
	}

	n := int64(len(ok))
	fmt.Printf("\nSummary:\n")
	fmt.Printf("- Avg first chunk: %dms (min %dms)\n", totalFirst/n, minFirst)
	fmt.Printf("- Avg total: %dms\n", totalWall/n)
	fmt.Printf("- Max total: %dms (%s)\n", maxWall, maxSample)
	fmt.Printf("- Total runs: %d (%d ok, %d failed)\n", len(results), len(ok), failed)
}

type jsonReport struct {
	Timestamp string   `json:"timestamp"`
	URL       string   `json:"url"`
	Engine    string   `json:"engine"`
	Results   []result `json:"results"`
}

func writeJSON(path string, results []result, baseURL, engine string) error {
	report := jsonReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		URL:       baseURL,
		Engine:    engine,
		Results:   results,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
