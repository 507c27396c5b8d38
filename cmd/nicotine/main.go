package main

import "github.com/bryanchriswhite/nicotine/cmd/nicotine/commands"

func main() {
	commands.Execute()
}
