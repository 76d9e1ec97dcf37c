package main

import "github.com/playrival/rival-server/internal/cli"

func main() {
	cli.Execute()
}
