// Command contentsync keeps a search index in sync with headless CMS content.
package main

import (
	"os"

	"github.com/kilupskalvis/contentsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
