package main

import "github.com/itsluap/indigo-bot/cmd"

func main() {
	cmd.Execute()
}
