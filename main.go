package main

import (
	"os"

	"DistWordCount/internal/coordinator"
)

func main() {
	os.Exit(coordinator.Main(os.Args[1:], os.Stdout, os.Stderr))
}
