package main

import "github.com/LeJamon/goshamap/internal/cli"

func main() {
	cli.Execute()
}
