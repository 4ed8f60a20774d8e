package main

import (
	"github.com/wzin/concord/internal/cli"
	"github.com/wzin/concord/internal/logging"
)

func main() {
	logging.Init()
	cli.Execute()
}
