// Command encore plays songs and keeps a per-listener recently-played history.
package main

import "github.com/tessro/encore/internal/cli"

func main() {
	cli.Execute()
}
