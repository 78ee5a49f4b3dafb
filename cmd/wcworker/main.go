package main

import (
	"os"

	"DistWordCount/internal/worker"
)

func main() {
	os.Exit(worker.Main(os.Args[1:], os.Stderr))
}
