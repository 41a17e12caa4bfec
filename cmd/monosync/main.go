package main

import "github.com/boddenberg/monosync/internal/cli"

func main() {
	cli.Main()
}
