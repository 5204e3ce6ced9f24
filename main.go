package main

import "github.com/teknestudio/propbot/cmd"

func main() {
	cmd.Execute()
}
