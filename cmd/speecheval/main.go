// Command speecheval evaluates speech-to-text engines.
package main

import (
	"os"

	"speech-eval-toolkit/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
