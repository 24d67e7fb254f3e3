package main

import (
	"os"

	"github.com/polylate/polylate/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
