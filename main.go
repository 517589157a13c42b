package main

import "h2gb/engine/cmd"

func main() {
	cmd.Execute()
}
