package main

import "github.com/OpenTraceLab/rocketdma/cmd/xdma/cmd"

func main() {
	cmd.Execute()
}
