package main

import (
	"encoding/json"
	"fmt"
	"io"

	"hearth/internal/observ"
)

func printBootTimings(out io.Writer, timer *observ.Timer, format string) error {
	if out == nil || timer == nil {
		return nil
	}
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(timer.Report())
	case "text", "":
		_, err := io.WriteString(out, timer.Summary())
		return err
	default:
		return fmt.Errorf("invalid --timings value %q (expected off|text|json)", format)
	}
}
