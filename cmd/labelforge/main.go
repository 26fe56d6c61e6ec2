package main

import (
	"os"

	"github.com/labelforge/labelforge/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
