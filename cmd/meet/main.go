package main

import (
	"github.com/BhargavShekhar/meet-p2p/internal/cli"
	"github.com/BhargavShekhar/meet-p2p/internal/logging"
)

func main() {
	logging.Init()
	cli.Execute()
}
