package main

import (
	"os"

	"github.com/watsumi/gentle-review/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
