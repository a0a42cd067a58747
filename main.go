package main

import "storycast/cmd"

func main() {
	cmd.Execute()
}
