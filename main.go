package main

import "bitfeed/cmd"

func main() {
	cmd.Execute()
}
