// Command osmem-abicheck checks a caller-supplied semver constraint
// against this module's published ABI version, the same
// constraint-matching idiom the teacher package uses for package-manager
// dependency resolution.
package main

import (
	"flag"
	"fmt"
	"os"

	semver "github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/osmem/internal/cli"
)

// ABIVersion is the semver identity of the descriptor/registry layout
// this build implements. It changes only when a change would break a
// caller relying on descriptor size, alignment, or the public
// alloc/zeroed_alloc/resize/release signatures.
const ABIVersion = "1.0.0"

func main() {
	var (
		showVersion bool
		jsonOutput  bool
		constraint  string
	)

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.BoolVar(&jsonOutput, "json", false, "output version in JSON format")
	flag.StringVar(&constraint, "constraint", "", "semver constraint to check against this build's ABI version (required)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s --constraint <semver-constraint>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "osmem-abicheck reports whether this build's ABI version satisfies a constraint.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s --constraint '>=1.0.0, <2.0.0'\n", os.Args[0])
	}

	flag.Parse()

	if showVersion {
		cli.PrintVersion("osmem-abicheck", jsonOutput)

		return
	}

	if constraint == "" {
		flag.Usage()
		os.Exit(2)
	}

	abi, err := semver.NewVersion(ABIVersion)
	if err != nil {
		cli.ExitWithError("internal: ABIVersion %q is not valid semver: %v", ABIVersion, err)
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		cli.ExitWithError("invalid constraint %q: %v", constraint, err)
	}

	if c.Check(abi) {
		fmt.Printf("ABI %s satisfies %q\n", abi, constraint)

		return
	}

	fmt.Printf("ABI %s does NOT satisfy %q\n", abi, constraint)
	os.Exit(1)
}
