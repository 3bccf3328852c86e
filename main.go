package main

import "mozmon/cmd"

func main() {
	cmd.Execute()
}
