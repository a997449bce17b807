package main

import (
	"fmt"
	"os"
)

func main() {
	if err := execute(&app{}, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
