package main

import "idgate/cmd"

func main() {
	cmd.Execute()
}
