package main

import "github.com/forPelevin/reelsmith/internal/cli"

func main() {
	cli.Main()
}
