package main

import "budgee-automation/src/cli"

func main() {
	cli.Execute()
}
