package main

import (
	"fmt"
	"os"
	"ywwzwb/imagearchive/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
