package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ligun0805/tier-sale/internal/config"
	"github.com/ligun0805/tier-sale/pkg/logger"
)

// die prints an error and exits with status 1.
func die(message string) {
	_ = logger.Close()
	fmt.Fprintln(os.Stderr, "Error:", message)
	os.Exit(1)
}

func printConfig(w io.Writer, s config.Settings) {
	fmt.Fprintln(w, "=== CONFIG ===")
	for _, kv := range s.Describe() {
		fmt.Fprintf(w, "%-24s: %s\n", kv[0], kv[1])
	}
	fmt.Fprintln(w, strings.Repeat("=", 14))
}
