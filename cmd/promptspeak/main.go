package main

import "github.com/ppiankov/promptspeak/internal/cli"

func main() {
	cli.Execute()
}
