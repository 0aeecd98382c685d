package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// tokenUsageMetric is the metric name the Claude Code OpenTelemetry file
// exporter emits for token consumption.
const tokenUsageMetric = "claude_code.token.usage"

// Usage is measured token consumption split by attribute.
type Usage struct {
	Input         int `json:"input"`
	Output        int `json:"output"`
	CacheRead     int `json:"cacheRead"`
	CacheCreation int `json:"cacheCreation"`
}

// Total sums every bucket.
func (u Usage) Total() int {
	return u.Input + u.Output + u.CacheRead + u.CacheCreation
}

// Exporter JSON shape, reduced to the fields the sum walk needs.
type otelExport struct {
	ResourceMetrics []struct {
		ScopeMetrics []struct {
			Metrics []struct {
				Name string `json:"name"`
				Sum  struct {
					DataPoints []otelDataPoint `json:"dataPoints"`
				} `json:"sum"`
			} `json:"metrics"`
		} `json:"scopeMetrics"`
	} `json:"resourceMetrics"`
}

type otelDataPoint struct {
	AsInt      string  `json:"asInt,omitempty"`
	AsDouble   float64 `json:"asDouble,omitempty"`
	Attributes []struct {
		Key   string `json:"key"`
		Value struct {
			StringValue string `json:"stringValue"`
		} `json:"value"`
	} `json:"attributes"`
}

func (p otelDataPoint) value() int {
	if p.AsInt != "" {
		n, err := strconv.ParseInt(p.AsInt, 10, 64)
		if err == nil {
			return int(n)
		}
	}
	return int(p.AsDouble)
}

func (p otelDataPoint) tokenType() string {
	for _, a := range p.Attributes {
		if a.Key == "type" {
			return a.Value.StringValue
		}
	}
	return ""
}

// ReadOTelUsage parses the most recent exporter JSON file in dir and sums
// the token usage data points by type attribute. Returns ok=false when the
// directory holds no exporter files.
func ReadOTelUsage(dir string) (Usage, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Usage{}, false, nil
		}
		return Usage{}, false, fmt.Errorf("read otel dir: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return Usage{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		fi, _ := os.Stat(filepath.Join(dir, candidates[i]))
		fj, _ := os.Stat(filepath.Join(dir, candidates[j]))
		if fi == nil || fj == nil {
			return candidates[i] < candidates[j]
		}
		return fi.ModTime().Before(fj.ModTime())
	})
	latest := filepath.Join(dir, candidates[len(candidates)-1])

	data, err := os.ReadFile(latest)
	if err != nil {
		return Usage{}, false, fmt.Errorf("read otel export: %w", err)
	}
	var export otelExport
	if err := json.Unmarshal(data, &export); err != nil {
		return Usage{}, false, fmt.Errorf("parse otel export %s: %w", latest, err)
	}

	var usage Usage
	for _, rm := range export.ResourceMetrics {
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Name != tokenUsageMetric {
					continue
				}
				for _, dp := range m.Sum.DataPoints {
					switch dp.tokenType() {
					case "input":
						usage.Input += dp.value()
					case "output":
						usage.Output += dp.value()
					case "cacheRead":
						usage.CacheRead += dp.value()
					case "cacheCreation":
						usage.CacheCreation += dp.value()
					}
				}
			}
		}
	}
	return usage, true, nil
}
