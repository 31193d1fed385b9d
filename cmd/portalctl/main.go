package main

import "github.com/blinkportal/backend/cmd/portalctl/commands"

func main() {
	commands.Execute()
}
