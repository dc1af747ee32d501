package main

import "souniq-server/cmd"

func main() {
	cmd.Execute()
}
