package main

import "github.com/mcastellin/netgossip/cmd"

func main() {
	cmd.Execute()
}
