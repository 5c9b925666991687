package main

import (
	"os"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
