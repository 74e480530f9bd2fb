//go:build !windows

package tray

import (
	"fmt"
	"os"
)

// ShowError prints the error to stderr where no native dialog is available.
func ShowError(title, message string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
}
