package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Auth     bool   `json:"auth"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type check struct {
	Target   target
	Status   int
	Match    bool
	Error    error
	Duration time.Duration
}

// defaultTargets covers the unauthenticated surface plus the read-only
// authenticated endpoints, so the probe is useful without a targets file.
var defaultTargets = []target{
	{Method: http.MethodGet, Path: "/health", Status: http.StatusOK, Critical: true},
	{Method: http.MethodGet, Path: "/ready", Status: http.StatusOK, Critical: true},
	{Method: http.MethodGet, Path: "/metrics", Status: http.StatusOK},
	{Method: http.MethodGet, Path: "/api/v1/plans", Status: http.StatusOK, Auth: true},
	{Method: http.MethodGet, Path: "/api/v1/courses", Status: http.StatusOK, Auth: true},
	{Method: http.MethodGet, Path: "/api/v1/preferences", Status: http.StatusNotFound, Auth: true},
}

func main() {
	var (
		base        string
		token       string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "Planner API base URL")
	flag.StringVar(&token, "token", os.Getenv("SMOKE_TOKEN"), "Bearer token for authenticated targets")
	flag.StringVar(&targetsPath, "targets", "", "Optional JSON targets file overriding the built-in list")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets := defaultTargets
	if targetsPath != "" {
		loaded, err := loadTargets(targetsPath)
		if err != nil {
			log.Fatalf("failed to load targets: %v", err)
		}
		targets = loaded
	}

	client := &http.Client{Timeout: timeout}
	var (
		checks   []check
		breaking int
		warnings int
	)

	for _, t := range targets {
		if t.Auth && token == "" {
			checks = append(checks, check{Target: t, Error: fmt.Errorf("skipped: no token supplied")})
			warnings++
			continue
		}
		result := probe(client, base, token, t)
		if result.Error != nil || !result.Match {
			if t.Critical {
				breaking++
			} else {
				warnings++
			}
		}
		checks = append(checks, result)
	}

	printReport(checks)

	fmt.Printf("Critical failures: %d, Warnings: %d\n", breaking, warnings)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func probe(client *http.Client, base, token string, tgt target) check {
	result := check{Target: tgt}

	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		result.Error = err
		return result
	}
	if tgt.Auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	result.Status = resp.StatusCode
	want := tgt.Status
	if want == 0 {
		want = http.StatusOK
	}
	result.Match = result.Status == want
	return result
}

func printReport(results []check) {
	fmt.Println("Planner API Smoke Report")
	fmt.Println("========================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.Match {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Status: %d (%s) | Critical: %t\n", res.Status, res.Duration, res.Target.Critical)
	}
}
