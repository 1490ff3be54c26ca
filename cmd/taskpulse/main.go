package main

import "github.com/marcus/taskpulse/cmd/taskpulse/commands"

func main() {
	commands.Execute()
}
