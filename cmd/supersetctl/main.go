package main

import "github.com/jrsteele09/go-superset-kernel/cmd/supersetctl/cmd"

func main() {
	cmd.Execute()
}
