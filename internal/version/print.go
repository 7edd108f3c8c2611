package version

import (
	"fmt"
	"io"
	"os"
)

// FprintVersion writes the version string to w, followed by a newline, in
// the form "<cmd> <package> <version> (<revision>)".
func FprintVersion(w io.Writer) {
	if revision != "" {
		fmt.Fprintf(w, "%s %s %s (%s)\n", os.Args[0], Package(), Version(), revision)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", os.Args[0], Package(), Version())
}

// PrintVersion writes the version information to stdout.
func PrintVersion() {
	FprintVersion(os.Stdout)
}
