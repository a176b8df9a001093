package main

import "github.com/unimail/unimail/internal/cli"

func main() {
	cli.Execute()
}
