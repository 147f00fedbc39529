package main

import "github.com/timvw/risk-patrol/cmd"

func main() {
	cmd.Execute()
}
