package main

import (
	"os"

	"DistWordCount/internal/coordinator"
)

func main() {
	os.Exit(coordinator.ProbeMain(os.Args[1:], os.Stdout, os.Stderr))
}
