package main

import (
	"catalog-importer/internal/cli"
)

func main() {
	cli.Execute()
}
