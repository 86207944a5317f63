package main

import "portfolio-analytics/internal/cli"

func main() {
	cli.Execute()
}
