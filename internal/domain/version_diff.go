package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// VersionText flattens an entity version into deterministic lines suitable
// for rendering a unified diff between two versions of the same logical
// entity.
func (e Entity) VersionText() []string {
	lines := []string{
		fmt.Sprintf("DisplayName: %s", e.DisplayName),
		fmt.Sprintf("EntityType: %s", e.TypeCode),
		fmt.Sprintf("ValidFrom: %s", e.ValidFrom.Format("2006-01-02T15:04:05.999999Z07:00")),
	}
	if e.ValidTo != nil {
		lines = append(lines, fmt.Sprintf("ValidTo: %s", e.ValidTo.Format("2006-01-02T15:04:05.999999Z07:00")))
	} else {
		lines = append(lines, "ValidTo: (open)")
	}
	return lines
}

// VersionText flattens a detail version, expanding structured values into
// sorted dotted-path lines.
func (d EntityDetail) VersionText() []string {
	lines := []string{
		fmt.Sprintf("DetailCode: %s", d.DetailCode),
		"Value:",
	}

	flattened := map[string]string{}
	flattenValue("", d.Value, flattened)
	if len(flattened) == 0 {
		lines = append(lines, "  (empty)")
	} else {
		keys := make([]string, 0, len(flattened))
		for key := range flattened {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			lines = append(lines, fmt.Sprintf("  %s: %s", key, flattened[key]))
		}
	}
	return lines
}

func flattenValue(prefix string, value any, acc map[string]string) {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "{}"
			}
			return
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			next := key
			if prefix != "" {
				next = prefix + "." + key
			}
			flattenValue(next, typed[key], acc)
		}
	case []any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "[]"
			}
			return
		}
		for idx, item := range typed {
			flattenValue(fmt.Sprintf("%s[%d]", prefix, idx), item, acc)
		}
	case nil:
		if prefix == "" {
			return
		}
		acc[prefix] = "null"
	default:
		key := prefix
		if key == "" {
			key = "(value)"
		}
		encoded, err := json.Marshal(typed)
		if err != nil {
			acc[key] = fmt.Sprintf("%v", typed)
			return
		}
		acc[key] = string(encoded)
	}
}

// RenderVersionDiff produces a unified diff between the line renderings of
// two versions, labelled for display.
func RenderVersionDiff(baseLabel string, base []string, targetLabel string, target []string) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	for _, op := range diffLines(base, target) {
		builder.WriteString(op.prefix)
		builder.WriteString(op.line)
		builder.WriteString("\n")
	}
	return builder.String()
}

type diffOp struct {
	prefix string
	line   string
}

// diffLines computes a longest-common-subsequence line diff.
func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}
		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}
	for i < m {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
		i++
	}
	for j < n {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
		j++
	}
	return ops
}
