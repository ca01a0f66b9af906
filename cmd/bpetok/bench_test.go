package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBench_Table(t *testing.T) {
	out, _, err := runCLI(t, nil, "bench", "--text", "hello hell he", "--runs", "3")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	for _, want := range []string{"Tokens/s", "mean"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestBench_JSON(t *testing.T) {
	out, _, err := runCLI(t, nil, "bench", "--text", "hello hell he", "--runs", "2", "--format", "json")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	var report struct {
		Runs []struct {
			Cold   bool `json:"cold"`
			Tokens int  `json:"tokens"`
		} `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}

	if len(report.Runs) != 2 {
		t.Fatalf("runs = %d; want 2", len(report.Runs))
	}

	if !report.Runs[0].Cold || report.Runs[1].Cold {
		t.Errorf("only the first run should be cold: %+v", report.Runs)
	}

	if report.Runs[0].Tokens != 3 {
		t.Errorf("tokens = %d; want 3", report.Runs[0].Tokens)
	}
}

func TestBench_MinThroughputGate(t *testing.T) {
	_, _, err := runCLI(t, nil, "bench", "--text", "hello", "--runs", "1", "--min-throughput", "1e15")
	if err == nil || !strings.Contains(err.Error(), "below threshold") {
		t.Fatalf("expected threshold error, got %v", err)
	}
}

func TestBench_CPUProfile(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "cpu.pprof")

	_, _, err := runCLI(t, nil, "bench", "--text", "hello", "--runs", "2", "--cpuprofile", profile)
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	info, err := os.Stat(profile)
	if err != nil {
		t.Fatalf("stat profile: %v", err)
	}

	if info.Size() == 0 {
		t.Error("cpu profile is empty")
	}
}

func TestBench_InvalidFlags(t *testing.T) {
	for _, args := range [][]string{
		{"bench", "--text", "hello", "--runs", "0"},
		{"bench", "--text", "hello", "--format", "csv"},
		{"bench"},
	} {
		if _, _, err := runCLI(t, nil, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}
