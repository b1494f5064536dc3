package main

import "medichat/internal/cli"

func main() {
	cli.Execute()
}
