package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "feedstream: %v\n", err)
		os.Exit(1)
	}
}
