package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/libload/internal/performance/metrics"
)

// Thresholds are pass/fail criteria evaluated against the final metrics.
// Each field holds expressions such as "p95 < 500ms" or "rate < 0.01".
type Thresholds struct {
	HTTPReqDuration   []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`
	HTTPReqFailed     []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`
	HTTPReqs          []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
	DroppedIterations []string `json:"dropped_iterations,omitempty" yaml:"dropped_iterations,omitempty"`
}

// Empty reports whether no threshold is configured.
func (t Thresholds) Empty() bool {
	return len(t.HTTPReqDuration) == 0 && len(t.HTTPReqFailed) == 0 &&
		len(t.HTTPReqs) == 0 && len(t.DroppedIterations) == 0
}

// Validate checks that every expression parses.
func (t Thresholds) Validate() error {
	var problems []string
	check := func(metric string, exprs []string) {
		for _, expr := range exprs {
			if _, _, _, err := parseThresholdExpression(expr); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", metric, err))
			}
		}
	}
	check("http_req_duration", t.HTTPReqDuration)
	check("http_req_failed", t.HTTPReqFailed)
	check("http_reqs", t.HTTPReqs)
	check("dropped_iterations", t.DroppedIterations)

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// evaluateThresholds evaluates all configured thresholds against the global stats.
func evaluateThresholds(t Thresholds, snapshot *metrics.Snapshot) []ThresholdResult {
	var results []ThresholdResult

	for _, expr := range t.HTTPReqDuration {
		results = append(results, evaluateDurationThreshold(expr, snapshot))
	}
	for _, expr := range t.HTTPReqFailed {
		results = append(results, evaluateFailedThreshold(expr, snapshot))
	}
	for _, expr := range t.HTTPReqs {
		results = append(results, evaluateCountThreshold("http_reqs", expr, float64(snapshot.Global.Requests), snapshot.RPS()))
	}
	for _, expr := range t.DroppedIterations {
		var dropRate float64
		if snapshot.Elapsed > 0 {
			dropRate = float64(snapshot.Global.Dropped) / snapshot.Elapsed.Seconds()
		}
		results = append(results, evaluateCountThreshold("dropped_iterations", expr, float64(snapshot.Global.Dropped), dropRate))
	}

	return results
}

// evaluateDurationThreshold evaluates an expression like "p95 < 500ms".
func evaluateDurationThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     "http_req_duration",
		Expression: expr,
	}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	latency := snapshot.Global.Latency
	var actualValue time.Duration
	switch metric {
	case "min":
		actualValue = latency.Min
	case "max":
		actualValue = latency.Max
	case "avg":
		actualValue = latency.Mean
	case "med", "p50":
		actualValue = latency.P50
	case "p90":
		actualValue = latency.P90
	case "p95":
		actualValue = latency.P95
	case "p99":
		actualValue = latency.P99
	default:
		// Any other pNN, e.g. p99.9
		q, ok := parsePercentile(metric)
		if !ok {
			result.Message = fmt.Sprintf("unknown metric: %s", metric)
			return result
		}
		actualValue = snapshot.Global.Percentile(q)
	}

	thresholdValue, err := time.ParseDuration(valueStr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = actualValue.String()
	result.Passed = compareValues(float64(actualValue), op, float64(thresholdValue))

	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", metric, actualValue, op, thresholdValue)
	}

	return result
}

// evaluateFailedThreshold evaluates a failure rate expression like "rate < 0.01".
func evaluateFailedThreshold(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     "http_req_failed",
		Expression: expr,
	}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	if metric != "rate" {
		result.Message = fmt.Sprintf("http_req_failed only supports 'rate' metric, got: %s", metric)
		return result
	}

	thresholdValue, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	errorRate := snapshot.Global.FailureRate()
	result.Value = fmt.Sprintf("%.4f", errorRate)
	result.Passed = compareValues(errorRate, op, thresholdValue)

	if !result.Passed {
		result.Message = fmt.Sprintf("error rate is %.4f, threshold: %s %.4f", errorRate, op, thresholdValue)
	}

	return result
}

// evaluateCountThreshold evaluates "count > 1000" or "rate > 100" against a counter.
func evaluateCountThreshold(name, expr string, count, perSecond float64) ThresholdResult {
	result := ThresholdResult{
		Metric:     name,
		Expression: expr,
	}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	thresholdValue, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	var actualValue float64
	switch metric {
	case "count":
		actualValue = count
	case "rate":
		actualValue = perSecond
	default:
		result.Message = fmt.Sprintf("%s only supports 'count' or 'rate' metrics, got: %s", name, metric)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", actualValue)
	result.Passed = compareValues(actualValue, op, thresholdValue)

	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", metric, actualValue, op, thresholdValue)
	}

	return result
}

var thresholdExpr = regexp.MustCompile(`^([\w.]+)\s*([<>=!]+)\s*(.+)$`)

// parseThresholdExpression parses an expression like "p95 < 500ms".
func parseThresholdExpression(expr string) (metric, op, value string, err error) {
	expr = strings.TrimSpace(expr)

	matches := thresholdExpr.FindStringSubmatch(expr)
	if len(matches) != 4 {
		return "", "", "", fmt.Errorf("invalid expression format: %s", expr)
	}

	switch matches[2] {
	case "<", "<=", ">", ">=", "==", "=", "!=", "<>":
	default:
		return "", "", "", fmt.Errorf("unknown operator %q in: %s", matches[2], expr)
	}

	return matches[1], matches[2], strings.TrimSpace(matches[3]), nil
}

// parsePercentile parses "p99.9" into 99.9.
func parsePercentile(metric string) (float64, bool) {
	if !strings.HasPrefix(metric, "p") {
		return 0, false
	}
	q, err := strconv.ParseFloat(metric[1:], 64)
	if err != nil || q < 0 || q > 100 {
		return 0, false
	}
	return q, true
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}
