package cmd

import (
	"fmt"

	"github.com/treemirror/treemirror/pkg/buildinfo"
)

// RunVersion prints the application version.
func RunVersion() {
	fmt.Printf("%s version %s\n", buildinfo.Name, buildinfo.Version)
}
