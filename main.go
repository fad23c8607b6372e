package main

import "github.com/pgsample/pgsample/cmd"

func main() {
	cmd.Execute()
}
