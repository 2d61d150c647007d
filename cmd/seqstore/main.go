package main

import "go-seqstore/internal/cli"

func main() {
	cli.Execute()
}
