package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dsj7419/cleo/internal/ops"
)

// ANSI codes used by the text renderer. Disabled wholesale by --no-color.
const (
	ansiReset = "\033[0m"
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiDim   = "\033[2m"
)

// renderText is the human-facing view of an envelope. The data payload keeps
// its JSON shape (pretty-printed) because operations return heterogeneous
// structures; the success/error framing is what gets the readable treatment.
func renderText(w io.Writer, envl ops.Envelope, color bool) error {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + ansiReset
	}

	if envl.Error != nil {
		fmt.Fprintf(w, "%s %s\n", paint(ansiRed, "error:"), envl.Error.Message)
		if envl.Error.Field != "" {
			fmt.Fprintf(w, "  field: %s\n", envl.Error.Field)
		}
		if envl.Error.Fix != "" {
			fmt.Fprintf(w, "  fix: %s\n", envl.Error.Fix)
		}
		for _, alt := range envl.Error.Alternatives {
			fmt.Fprintf(w, "  alternative: %s\n", alt)
		}
		fmt.Fprintf(w, "%s\n", paint(ansiDim, fmt.Sprintf("(%s, exit %d)", envl.Error.Code, envl.Error.ExitCode)))
		return nil
	}

	fmt.Fprintf(w, "%s %s\n", paint(ansiGreen, "ok:"), envl.Meta.Cmd)
	if envl.Data == nil {
		return nil
	}
	data, err := json.MarshalIndent(envl.Data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", data)
	return nil
}
