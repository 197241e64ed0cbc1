package main

import (
	"os"

	"github.com/mmrepo/mmr/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
