package main

import "taskboard-server/internal/cli"

func main() {
	cli.Execute()
}
