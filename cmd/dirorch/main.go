// Command dirorch runs a directory-backed workflow to fixpoint.
package main

import (
	"fmt"
	"os"

	"github.com/kobuchi/dirorch/internal/interface/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
